// services/capacity_service.go
package services

import (
	"errors"
	"fmt"

	"hashrate-rental-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// CapacityService owns the singleton capacity ledger. Reserve and Release
// run inside the caller's transaction so the ledger update commits or rolls
// back together with the subscription change that triggered it.
type CapacityService struct {
	DB *gorm.DB
}

func NewCapacityService(db *gorm.DB) *CapacityService {
	return &CapacityService{DB: db}
}

// Reserve takes amount TH/s out of the available pool under an exclusive
// row lock. Returns ErrInsufficientCapacity when amount exceeds what is
// available; the ledger is left untouched in that case.
func (s *CapacityService) Reserve(tx *gorm.DB, amount float64) (*models.CapacityLedger, error) {
	var ledger models.CapacityLedger
	if err := forUpdate(tx).First(&ledger, models.CapacityLedgerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("capacity ledger not initialized: %w", err)
		}
		return nil, err
	}

	if amount > ledger.AvailableTH {
		return nil, fmt.Errorf("%w: requested %.2f TH/s, available %.2f TH/s",
			ErrInsufficientCapacity, amount, ledger.AvailableTH)
	}

	ledger.RentedTH += amount
	ledger.AvailableTH = ledger.TotalTH - ledger.RentedTH
	if err := tx.Save(&ledger).Error; err != nil {
		return nil, err
	}
	return &ledger, nil
}

// Release returns amount TH/s to the pool under the same lock. A release
// that would drive rented hashrate negative aborts the caller's transaction
// with ErrCapacityCorrupted; it indicates ledger corruption and must never
// be absorbed silently.
func (s *CapacityService) Release(tx *gorm.DB, amount float64) error {
	var ledger models.CapacityLedger
	if err := forUpdate(tx).First(&ledger, models.CapacityLedgerID).Error; err != nil {
		return err
	}

	newRented := ledger.RentedTH - amount
	if newRented < 0 {
		return fmt.Errorf("%w: rented %.2f, releasing %.2f", ErrCapacityCorrupted, ledger.RentedTH, amount)
	}

	ledger.RentedTH = newRented
	ledger.AvailableTH = ledger.TotalTH - newRented
	return tx.Save(&ledger).Error
}

// Get returns the ledger without locking.
func (s *CapacityService) Get() (*models.CapacityLedger, error) {
	var ledger models.CapacityLedger
	if err := s.DB.First(&ledger, models.CapacityLedgerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	// Recompute on the way out so a drifted column never reaches clients.
	ledger.AvailableTH = ledger.TotalTH - ledger.RentedTH
	return &ledger, nil
}

// EnsureLedger seeds the singleton row at boot when it does not exist yet.
// Total capacity changes only through operator action on the database.
func (s *CapacityService) EnsureLedger(totalTH float64) error {
	var ledger models.CapacityLedger
	err := s.DB.First(&ledger, models.CapacityLedgerID).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.DB.Create(&models.CapacityLedger{
		ID:          models.CapacityLedgerID,
		TotalTH:     totalTH,
		RentedTH:    0,
		AvailableTH: totalTH,
	}).Error
}

// GetCapacity is the read-only HTTP surface for the ledger.
func (s *CapacityService) GetCapacity(c *fiber.Ctx) error {
	ledger, err := s.Get()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false, "message": "No capacity data found.",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "message": "Internal server error.",
		})
	}
	return c.JSON(fiber.Map{"success": true, "data": ledger})
}
