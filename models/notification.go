// models/notification.go
package models

import "time"

type NotificationImportance string

const (
	ImportanceNormal    NotificationImportance = "normal"
	ImportanceImportant NotificationImportance = "important"
)

// Notification is a persisted user notice. UserID nil means broadcast
// (visible to everyone). Push delivery over the event hub is best-effort;
// clients reach the same state by polling this table.
type Notification struct {
	ID         uint                   `gorm:"primaryKey" json:"id"`
	UserID     *string                `gorm:"type:uuid;index" json:"user_id"`
	Title      string                 `gorm:"type:varchar(128);not null" json:"title"`
	Message    string                 `gorm:"type:text;not null" json:"message"`
	Importance NotificationImportance `gorm:"type:varchar(16);not null;default:'normal'" json:"importance"`
	Icon       string                 `gorm:"type:varchar(64)" json:"icon"`
	IsRead     bool                   `gorm:"not null;default:false" json:"is_read"`
	CreatedAt  time.Time              `json:"created_at"`
}
