// models/block.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Block is an operator-attributed proof-of-work block as recorded by the
// ingest job. Immutable once inserted; Height and Hash are both unique.
type Block struct {
	ID           uint            `gorm:"primaryKey;column:block_id" json:"block_id"`
	Height       int64           `gorm:"not null;uniqueIndex" json:"height"`
	Hash         string          `gorm:"column:block_hash;type:varchar(64);not null;uniqueIndex" json:"block_hash"`
	Timestamp    time.Time       `gorm:"not null;index" json:"timestamp"`
	BitcoinMined decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"bitcoin_mined"`
	Size         int64           `gorm:"not null" json:"size"`
	Difficulty   float64         `gorm:"not null" json:"difficulty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Allocation links a subscription to a block it earned a share of. At most
// one row per (subscription, block) pair, written by the ingest job at
// block-processing time and never recomputed.
type Allocation struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	SubscriptionID   uint            `gorm:"not null;uniqueIndex:idx_subscription_block" json:"subscription_id"`
	BlockID          uint            `gorm:"not null;uniqueIndex:idx_subscription_block" json:"block_id"`
	Height           int64           `gorm:"not null" json:"height"`
	BitcoinAllocated decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"bitcoin_allocated"`
	CreatedAt        time.Time       `json:"created_at"`
}

func (Allocation) TableName() string {
	return "subscription_blocks"
}
