package models

import (
	"time"
)

// ScanUsage counts scan runs per (user, UTC calendar day). Rows are bumped
// through a single conditional upsert so concurrent requests cannot slip
// past the tier quota.
type ScanUsage struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	UserID string `gorm:"type:varchar(64);not null;uniqueIndex:idx_usage_user_day"`
	Day    string `gorm:"type:varchar(10);not null;uniqueIndex:idx_usage_user_day"`
	Count  int    `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (ScanUsage) TableName() string {
	return "scan_usages"
}

// UsageDay formats a moment as the UTC day key used for quota scoping.
func UsageDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
