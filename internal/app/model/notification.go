package model

import (
	"time"
)

type NotificationType string

const (
	NotificationTypePermitStatus    NotificationType = "permit_status"
	NotificationTypeRenewalReminder NotificationType = "renewal_reminder"
)

// Notification is an in-app inbox entry.
type Notification struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID uint             `gorm:"not null;index" json:"user_id"`
	Type   NotificationType `gorm:"type:varchar(50);not null;index" json:"type"`

	Title   string `gorm:"type:text;not null" json:"title"`
	Content string `gorm:"type:text;not null" json:"content"`
	Link    string `gorm:"type:text" json:"link,omitempty"`

	IsRead bool `gorm:"default:false;index" json:"is_read"`

	RelatedPermitID *uint `gorm:"index" json:"related_permit_id,omitempty"`
}

func (Notification) TableName() string {
	return "notifications"
}
