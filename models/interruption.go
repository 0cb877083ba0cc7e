// models/interruption.go
package models

import "time"

// Interruption is a planned-downtime window. EndTime stays nil while the
// interruption is open; at most one row is open at a time (enforced on
// Start).
type Interruption struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	StartTime time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime   *time.Time `gorm:"index" json:"end_time"`
	CreatedAt time.Time  `json:"created_at"`
}

// Covers reports whether ts falls inside the interruption window. An open
// interruption is clipped to now.
func (i *Interruption) Covers(ts, now time.Time) bool {
	if ts.Before(i.StartTime) {
		return false
	}
	end := now
	if i.EndTime != nil {
		end = *i.EndTime
	}
	return !ts.After(end)
}
