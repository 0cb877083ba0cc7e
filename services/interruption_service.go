// services/interruption_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"hashrate-rental-system/events"
	"hashrate-rental-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// InterruptionService tracks planned-downtime windows. Blocks mined inside
// a window earn nothing, and settlement excludes the downtime from the
// energy bill.
type InterruptionService struct {
	DB  *gorm.DB
	Pub events.Publisher
}

func NewInterruptionService(db *gorm.DB, pub events.Publisher) *InterruptionService {
	return &InterruptionService{DB: db, Pub: pub}
}

// Start opens a new interruption. Only one may be open at a time; a second
// Start fails with ErrInterruptionOpen.
func (s *InterruptionService) Start() (*models.Interruption, error) {
	var interruption *models.Interruption
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var open models.Interruption
		err := forUpdate(tx).Where("end_time IS NULL").First(&open).Error
		if err == nil {
			return ErrInterruptionOpen
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		interruption = &models.Interruption{StartTime: time.Now().UTC()}
		if err := tx.Create(interruption).Error; err != nil {
			return err
		}

		_, err = createNotification(tx, nil,
			"Hashrate Interruption Started",
			fmt.Sprintf("Hashrate interruption started at %s", interruption.StartTime.Format(time.RFC3339)),
			models.ImportanceImportant, "start_interruption")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Pub.Emit(events.EventInterruptionStarted, interruption)
	return interruption, nil
}

// End closes the open interruption, adds the downtime to every overlapping
// subscription and notifies their owners.
func (s *InterruptionService) End() (*models.Interruption, error) {
	var interruption *models.Interruption
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var open models.Interruption
		if err := forUpdate(tx).Where("end_time IS NULL").First(&open).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoOpenInterruption
			}
			return err
		}

		endTime := time.Now().UTC()
		open.EndTime = &endTime
		if err := tx.Save(&open).Error; err != nil {
			return err
		}
		interruption = &open

		durationMinutes := int64(endTime.Sub(open.StartTime) / time.Minute)

		var affected []models.Subscription
		if err := tx.
			Where("start_date <= ? AND end_date >= ?", endTime, open.StartTime).
			Find(&affected).Error; err != nil {
			return err
		}

		for _, sub := range affected {
			if err := tx.Model(&models.Subscription{}).
				Where("subscription_id = ?", sub.ID).
				Update("interruption_minutes", gorm.Expr("interruption_minutes + ?", durationMinutes)).Error; err != nil {
				return err
			}
			userID := sub.UserID
			if _, err := createNotification(tx, &userID,
				"End of Hashrate Interruption",
				fmt.Sprintf("Your hashrate is back online. Interruption lasted %d minutes.", durationMinutes),
				models.ImportanceImportant, "end_interruption"); err != nil {
				return err
			}
		}

		log.Printf("[Interruption] ended after %d minutes, %d subscription(s) affected", durationMinutes, len(affected))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Pub.Emit(events.EventInterruptionEnded, interruption)
	return interruption, nil
}

// Active returns the currently-open interruption, or nil.
func (s *InterruptionService) Active() (*models.Interruption, error) {
	var open models.Interruption
	if err := s.DB.Where("end_time IS NULL").First(&open).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &open, nil
}

// overlapMinutes sums the overlap, in whole minutes, between
// [start, end] and every recorded interruption. Open interruptions are
// clipped to now. Shared by settlement and daily cost accrual.
func overlapMinutes(tx *gorm.DB, start, end, now time.Time) (int64, error) {
	var interruptions []models.Interruption
	if err := tx.
		Where("start_time <= ? AND (end_time IS NULL OR end_time >= ?)", end, start).
		Find(&interruptions).Error; err != nil {
		return 0, err
	}

	var total time.Duration
	for _, in := range interruptions {
		iEnd := now
		if in.EndTime != nil {
			iEnd = *in.EndTime
		}
		oStart := in.StartTime
		if oStart.Before(start) {
			oStart = start
		}
		oEnd := iEnd
		if oEnd.After(end) {
			oEnd = end
		}
		if oStart.Before(oEnd) {
			total += oEnd.Sub(oStart)
		}
	}
	return int64(total / time.Minute), nil
}

// --- HTTP surface ---

func (s *InterruptionService) StartInterruption(c *fiber.Ctx) error {
	interruption, err := s.Start()
	if err != nil {
		if errors.Is(err, ErrInterruptionOpen) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false, "message": "An interruption is already in progress.",
			})
		}
		log.Printf("Error starting interruption: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "message": "Internal server error.",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "interruption": interruption})
}

func (s *InterruptionService) EndInterruption(c *fiber.Ctx) error {
	interruption, err := s.End()
	if err != nil {
		if errors.Is(err, ErrNoOpenInterruption) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false, "message": "No active interruption to end.",
			})
		}
		log.Printf("Error ending interruption: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "message": "Internal server error.",
		})
	}
	return c.JSON(fiber.Map{"success": true, "interruption": interruption})
}

func (s *InterruptionService) GetInterruptions(c *fiber.Ctx) error {
	var interruptions []models.Interruption
	if err := s.DB.Order("start_time DESC").Find(&interruptions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "message": "Internal server error.",
		})
	}
	return c.JSON(fiber.Map{"success": true, "interruptions": interruptions})
}

func (s *InterruptionService) GetActiveInterruption(c *fiber.Ctx) error {
	open, err := s.Active()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "message": "Internal server error.",
		})
	}
	if open == nil {
		return c.JSON(fiber.Map{"active": false})
	}
	return c.JSON(fiber.Map{"active": true, "interruption": open})
}
