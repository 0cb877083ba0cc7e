// models/subscription.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Subscription is one rented slice of the hashrate pool. It is created by a
// rent request, accrues block allocations while active, and is soft-closed
// (IsValid=false) by the hourly settlement sweep once EndDate passes. Rows
// are never deleted; closed subscriptions carry the settled cost/fee/profit
// figures forever.
type Subscription struct {
	ID                  uint      `gorm:"primaryKey;column:subscription_id" json:"subscription_id"`
	UserID              string    `gorm:"type:uuid;not null;index" json:"user_id"`
	Hashrate            float64   `gorm:"not null" json:"hashrate"` // TH/s
	StartDate           time.Time `gorm:"not null" json:"start_date"`
	EndDate             time.Time `gorm:"not null;index" json:"end_date"`
	IsValid             bool      `gorm:"not null;default:true;index" json:"is_valid"`
	InterruptionMinutes int64     `gorm:"not null;default:0" json:"interruption_minutes"`

	// Running daily estimate written by the cost-accrual job. Display only;
	// the settled HostingCostsUSD below is recomputed from scratch at expiry.
	AccruedCostsUSD decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"accrued_costs_usd"`

	// Settlement results, written once when the subscription expires.
	HostingCostsUSD  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"hosting_costs_usd"`
	HostingFeesBTC   decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"hosting_fees_btc"`
	MiningPoolFeeBTC decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"mining_pool_fee_btc"`
	ProfitBTC        decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"profit_btc"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Covers reports whether ts falls inside the subscription window.
func (s *Subscription) Covers(ts time.Time) bool {
	return !s.StartDate.After(ts) && !s.EndDate.Before(ts)
}

// UserMinedTotal is the lifetime mined-BTC aggregate per user, upserted at
// each settlement.
type UserMinedTotal struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	UserID        string          `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	TotalMinedBTC decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"total_mined_btc"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
