// services/subscription_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"hashrate-rental-system/events"
	"hashrate-rental-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionExpiredEvent is pushed to the owner when a subscription is
// settled. Monetary fields are fixed-point strings.
type SubscriptionExpiredEvent struct {
	SubscriptionID  uint   `json:"subscriptionId"`
	HostingCostsUSD string `json:"hostingCostsUSD"`
	HostingFeesBTC  string `json:"hostingFeesBTC"`
	MiningPoolFee   string `json:"miningPoolFee"`
	ProfitBTC       string `json:"profitBtc"`
}

// SubscriptionService owns the subscription lifecycle: creation (with
// capacity reservation), the hourly settlement sweep, and the daily cost
// accrual estimate.
type SubscriptionService struct {
	DB       *gorm.DB
	Capacity *CapacityService
	Prices   PriceSource
	Pub      events.Publisher
	Tunables Tunables
}

func NewSubscriptionService(db *gorm.DB, capacity *CapacityService, prices PriceSource, pub events.Publisher, cfg Tunables) *SubscriptionService {
	return &SubscriptionService{
		DB:       db,
		Capacity: capacity,
		Prices:   prices,
		Pub:      pub,
		Tunables: cfg,
	}
}

// consumedEnergyKWH integrates the energy draw of the rented hashrate over
// the active window, excluding downtime.
func consumedEnergyKWH(asicWatts, thPerASIC, hashrate float64, daysActive, interruptionMinutes int64) float64 {
	powerPerTH := asicWatts / thPerASIC
	totalPower := powerPerTH * hashrate
	hoursActive := float64(daysActive*24) - float64(interruptionMinutes)/60
	if hoursActive < 0 {
		hoursActive = 0
	}
	return totalPower * hoursActive / 1000
}

// Create rents hashrate for periodDays. Capacity reservation and the
// subscription insert commit together or not at all.
func (s *SubscriptionService) Create(userID string, hashrate float64, periodDays int) (*models.Subscription, error) {
	if hashrate <= 0 || periodDays <= 0 {
		return nil, fmt.Errorf("%w: hashrate and subscription period must be positive", ErrValidation)
	}

	var sub *models.Subscription
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := s.Capacity.Reserve(tx, hashrate); err != nil {
			return err
		}

		now := time.Now().UTC()
		sub = &models.Subscription{
			UserID:    userID,
			Hashrate:  hashrate,
			StartDate: now,
			EndDate:   now.AddDate(0, 0, periodDays),
			IsValid:   true,
		}
		if err := tx.Create(sub).Error; err != nil {
			return err
		}

		_, err := createNotification(tx, &userID,
			"New Subscription Started",
			fmt.Sprintf("You have successfully rented %g TH/s of hashrate.", hashrate),
			models.ImportanceNormal, "subscription")
		return err
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// RunSettlementSweep closes and settles every expired subscription. Items
// are independent: one failure is logged and retried next hour without
// stopping the sweep.
func (s *SubscriptionService) RunSettlementSweep() {
	now := time.Now().UTC()

	var expired []models.Subscription
	if err := s.DB.
		Where("is_valid = ? AND end_date < ?", true, now).
		Find(&expired).Error; err != nil {
		log.Printf("[Settlement] failed to list expired subscriptions: %v", err)
		return
	}

	for _, sub := range expired {
		if err := s.settle(sub, now); err != nil {
			log.Printf("[Settlement] subscription %d failed, will retry next sweep: %v", sub.ID, err)
		}
	}
}

func (s *SubscriptionService) settle(sub models.Subscription, now time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var expired *SubscriptionExpiredEvent
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		// Re-check under lock; another sweep may have settled it already.
		var locked models.Subscription
		if err := forUpdate(tx).First(&locked, sub.ID).Error; err != nil {
			return err
		}
		if !locked.IsValid {
			return nil
		}

		if err := s.Capacity.Release(tx, locked.Hashrate); err != nil {
			return err
		}

		interruptionMinutes, err := overlapMinutes(tx, locked.StartDate, locked.EndDate, now)
		if err != nil {
			return err
		}

		daysActive := int64(math.Ceil(locked.EndDate.Sub(locked.StartDate).Hours() / 24))
		if daysActive < 0 {
			daysActive = 0
		}

		energyKWH := consumedEnergyKWH(
			s.Tunables.ASICPowerWatts, s.Tunables.THPerASIC,
			locked.Hashrate, daysActive, interruptionMinutes)
		hostingCosts := decimal.NewFromFloat(s.Tunables.HostingFeePerKWH * energyKWH).Round(2)

		var allocations []models.Allocation
		if err := tx.Where("subscription_id = ?", locked.ID).Find(&allocations).Error; err != nil {
			return err
		}
		totalAllocated := decimal.Zero
		for _, a := range allocations {
			totalAllocated = totalAllocated.Add(a.BitcoinAllocated)
		}

		poolFee := totalAllocated.
			Mul(decimal.NewFromFloat(s.Tunables.PoolFeePercent)).
			Div(decimal.NewFromInt(100)).Round(8)

		price, err := s.Prices.Price(ctx, "BTC", "USD")
		if err != nil {
			return fmt.Errorf("fetch spot price: %w", err)
		}
		hostingFeesBTC := hostingCosts.Div(price).Round(8)

		// Profit is stored as computed, negative or not; only the wallet
		// credit below is floored at zero.
		profit := totalAllocated.Sub(hostingFeesBTC).Sub(poolFee).Round(8)

		if err := tx.Model(&locked).Updates(map[string]interface{}{
			"is_valid":             false,
			"hosting_costs_usd":    hostingCosts,
			"hosting_fees_btc":     hostingFeesBTC,
			"mining_pool_fee_btc":  poolFee,
			"profit_btc":           profit,
			"interruption_minutes": interruptionMinutes,
		}).Error; err != nil {
			return err
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_mined_btc": gorm.Expr("total_mined_btc + ?", totalAllocated),
			}),
		}).Create(&models.UserMinedTotal{
			UserID:        locked.UserID,
			TotalMinedBTC: totalAllocated,
		}).Error; err != nil {
			return err
		}

		credit := profit
		if credit.IsNegative() {
			log.Printf("[Settlement] subscription %d settled at a loss (%s BTC), wallet credit floored at zero",
				locked.ID, profit.StringFixed(8))
			credit = decimal.Zero
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"available_btc": gorm.Expr("available_btc + ?", credit),
			}),
		}).Create(&models.Wallet{
			UserID:       locked.UserID,
			AvailableBTC: credit,
		}).Error; err != nil {
			return err
		}

		userID := locked.UserID
		if _, err := createNotification(tx, &userID,
			"Subscription Expired",
			"Your mining subscription has ended. Check your rewards!",
			models.ImportanceNormal, "end_subscription"); err != nil {
			return err
		}

		expired = &SubscriptionExpiredEvent{
			SubscriptionID:  locked.ID,
			HostingCostsUSD: hostingCosts.StringFixed(2),
			HostingFeesBTC:  hostingFeesBTC.StringFixed(8),
			MiningPoolFee:   poolFee.StringFixed(8),
			ProfitBTC:       profit.StringFixed(8),
		}
		return nil
	})
	if err != nil {
		return err
	}

	if expired != nil {
		s.Pub.EmitToUser(sub.UserID, events.EventSubscriptionExpired, *expired)
		log.Printf("[Settlement] subscription %d settled: profit %s BTC", sub.ID, expired.ProfitBTC)
	}
	return nil
}

// RunDailyCostAccrual adds one day's estimated hosting cost to every active
// subscription. This running figure is display-only; settlement recomputes
// the final cost from scratch.
func (s *SubscriptionService) RunDailyCostAccrual() {
	now := time.Now().UTC()

	var active []models.Subscription
	if err := s.DB.Where("is_valid = ?", true).Find(&active).Error; err != nil {
		log.Printf("[CostAccrual] failed to list active subscriptions: %v", err)
		return
	}

	for _, sub := range active {
		windowStart := now.Add(-24 * time.Hour)
		if windowStart.Before(sub.StartDate) {
			windowStart = sub.StartDate
		}
		minutes, err := overlapMinutes(s.DB, windowStart, now, now)
		if err != nil {
			log.Printf("[CostAccrual] subscription %d: %v", sub.ID, err)
			continue
		}

		dailyEnergy := consumedEnergyKWH(
			s.Tunables.ASICPowerWatts, s.Tunables.THPerASIC,
			sub.Hashrate, 1, minutes)
		dailyCost := decimal.NewFromFloat(s.Tunables.HostingFeePerKWH * dailyEnergy).Round(2)

		if err := s.DB.Model(&models.Subscription{}).
			Where("subscription_id = ?", sub.ID).
			Update("accrued_costs_usd", gorm.Expr("accrued_costs_usd + ?", dailyCost)).Error; err != nil {
			log.Printf("[CostAccrual] subscription %d: %v", sub.ID, err)
		}
	}
}

// --- HTTP surface ---

func (s *SubscriptionService) CreateSubscription(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		Hashrate               float64 `json:"hashrate"`
		SubscriptionPeriodDays int     `json:"subscriptionPeriodDays"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false, "message": "Hashrate and subscription period are required.",
		})
	}

	sub, err := s.Create(userID, req.Hashrate, req.SubscriptionPeriodDays)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation), errors.Is(err, ErrInsufficientCapacity):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false, "message": err.Error(),
			})
		default:
			log.Printf("Error creating subscription: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false, "message": "Internal server error.",
			})
		}
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "subscription": sub})
}

func (s *SubscriptionService) GetActiveSubscription(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var sub models.Subscription
	err := s.DB.
		Where("user_id = ? AND is_valid = ?", userID, true).
		Order("end_date DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{"success": true, "subscription": nil})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "message": "Internal server error.",
		})
	}

	remainingDays := int(math.Ceil(time.Until(sub.EndDate).Hours() / 24))
	return c.JSON(fiber.Map{
		"success": true,
		"subscription": fiber.Map{
			"subscription":  sub,
			"remainingDays": remainingDays,
		},
	})
}

func (s *SubscriptionService) GetBitcoinAllocated(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var sub models.Subscription
	err := s.DB.
		Where("user_id = ? AND is_valid = ?", userID, true).
		Order("end_date DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{"success": true, "bitcoinAllocated": decimal.Zero})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "message": "Internal server error.",
		})
	}

	total, err := s.totalAllocated(sub.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "message": "Internal server error.",
		})
	}
	return c.JSON(fiber.Map{"success": true, "bitcoinAllocated": total})
}

func (s *SubscriptionService) totalAllocated(subscriptionID uint) (decimal.Decimal, error) {
	var allocations []models.Allocation
	if err := s.DB.Where("subscription_id = ?", subscriptionID).Find(&allocations).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, a := range allocations {
		total = total.Add(a.BitcoinAllocated)
	}
	return total, nil
}

// GetInvalidSubscriptions returns the caller's settled subscriptions with
// the per-subscription mined/fee/profit breakdown.
func (s *SubscriptionService) GetInvalidSubscriptions(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var subs []models.Subscription
	if err := s.DB.
		Where("user_id = ? AND is_valid = ?", userID, false).
		Order("end_date DESC").
		Find(&subs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "message": "Internal server error.",
		})
	}

	type historyEntry struct {
		ID              uint   `json:"id"`
		StartDate       string `json:"startDate"`
		EndDate         string `json:"endDate"`
		MinedBTC        string `json:"minedBtc"`
		HostingFeesUSD  string `json:"hostingFeesUSD"`
		HostingFeesBTC  string `json:"hostingFeesBTC"`
		MiningPoolFees  string `json:"miningPoolFees"`
		ProfitBTC       string `json:"profitBtc"`
	}

	history := make([]historyEntry, 0, len(subs))
	for _, sub := range subs {
		mined, err := s.totalAllocated(sub.ID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false, "message": "Internal server error.",
			})
		}
		history = append(history, historyEntry{
			ID:             sub.ID,
			StartDate:      sub.StartDate.Format("2006-01-02"),
			EndDate:        sub.EndDate.Format("2006-01-02"),
			MinedBTC:       mined.StringFixed(8),
			HostingFeesUSD: sub.HostingCostsUSD.StringFixed(2),
			HostingFeesBTC: sub.HostingFeesBTC.StringFixed(8),
			MiningPoolFees: sub.MiningPoolFeeBTC.StringFixed(8),
			ProfitBTC:      sub.ProfitBTC.StringFixed(8),
		})
	}
	return c.JSON(fiber.Map{"success": true, "subscriptions": history})
}

// GetMiningStats returns the caller's lifetime mined BTC and subscription
// count.
func (s *SubscriptionService) GetMiningStats(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var mined models.UserMinedTotal
	totalMined := decimal.Zero
	if err := s.DB.Where("user_id = ?", userID).First(&mined).Error; err == nil {
		totalMined = mined.TotalMinedBTC
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "message": "Internal server error.",
		})
	}

	var count int64
	if err := s.DB.Model(&models.Subscription{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "message": "Internal server error.",
		})
	}

	return c.JSON(fiber.Map{
		"success":               true,
		"totalMinedBtc":         totalMined,
		"numberOfSubscriptions": count,
	})
}

// GetBlockReward returns what the caller's active subscription earned from
// one specific block.
func (s *SubscriptionService) GetBlockReward(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	blockID, err := c.ParamsInt("block_id")
	if err != nil || blockID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false, "message": "Missing or invalid block id.",
		})
	}

	var sub models.Subscription
	if err := s.DB.
		Where("user_id = ? AND is_valid = ?", userID, true).
		Order("end_date DESC").
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false, "message": "No active subscription found.",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "message": "Internal server error.",
		})
	}

	var alloc models.Allocation
	if err := s.DB.
		Where("subscription_id = ? AND block_id = ?", sub.ID, blockID).
		First(&alloc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{"success": true, "bitcoin_allocated": decimal.Zero})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "message": "Internal server error.",
		})
	}
	return c.JSON(fiber.Map{"success": true, "bitcoin_allocated": alloc.BitcoinAllocated})
}
