package models

import (
	"time"
)

const (
	AlertChannelEmail    = "email"
	AlertChannelWhatsApp = "whatsapp"
)

// AlertSubscription is a user's standing request for realtime notifications
// about high-confidence opportunities.
type AlertSubscription struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID string `gorm:"type:varchar(64);not null;index" json:"user_id"`

	Channel     string `gorm:"type:varchar(20);not null" json:"channel"`
	Destination string `gorm:"type:varchar(200);not null" json:"destination"`
	Realtime    bool   `gorm:"not null;default:false;index" json:"realtime"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (AlertSubscription) TableName() string {
	return "alert_subscriptions"
}
