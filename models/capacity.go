// models/capacity.go
package models

// CapacityLedger is the singleton row tracking how much of the fixed
// hashrate pool is rented out. Invariant: Available == Total - Rented.
// Table name: capacity_ledger, always id = 1.
type CapacityLedger struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	TotalTH     float64 `gorm:"column:total_hashrate_th;not null" json:"total_hashrate_th"`
	RentedTH    float64 `gorm:"column:rented_hashrate_th;not null;default:0" json:"rented_hashrate_th"`
	AvailableTH float64 `gorm:"column:available_hashrate_th;not null" json:"available_hashrate_th"`
}

func (CapacityLedger) TableName() string {
	return "capacity_ledger"
}

// CapacityLedgerID is the fixed primary key of the singleton row.
const CapacityLedgerID uint = 1
