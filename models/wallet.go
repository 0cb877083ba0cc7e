// models/wallet.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the per-user BTC ledger. Both balances are non-negative at all
// times; every mutation happens under a row lock together with the
// withdrawal request it belongs to.
type Wallet struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	UserID            string          `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	AvailableBTC      decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"available_btc"`
	PendingWithdrawal decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"pending_withdrawal"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// WithdrawalStatus is the admin-visible state of a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "Pending"
	WithdrawalProcessed WithdrawalStatus = "Processed"
	WithdrawalRejected  WithdrawalStatus = "Rejected"
)

// WithdrawalRequest moves Pending -> Processed or Pending -> Rejected by
// admin action; both terminal states can be moved back to Pending via
// review. A Pending request may be deleted by its owner, which removes the
// row and refunds the wallet.
type WithdrawalRequest struct {
	ID                uint             `gorm:"primaryKey" json:"id"`
	Reference         string           `gorm:"type:uuid;not null;uniqueIndex" json:"reference"`
	UserID            string           `gorm:"type:uuid;not null;index" json:"user_id"`
	AmountBTC         decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"amount_btc"`
	AmountLocal       decimal.Decimal  `gorm:"type:decimal(20,2);not null;default:0" json:"amount_local"`
	BankName          string           `gorm:"type:varchar(128)" json:"bank_name"`
	BankAccountNumber string           `gorm:"type:varchar(64)" json:"bank_account_number"`
	AccountHolderName string           `gorm:"type:varchar(128)" json:"account_holder_name"`
	Status            WithdrawalStatus `gorm:"type:varchar(16);not null;default:'Pending';index" json:"status"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}
