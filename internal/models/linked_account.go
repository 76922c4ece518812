package models

import (
	"time"
)

// LinkedAccount holds one user's connection to one external platform.
// Either the OAuth token triple (Betfair) or the API key pair (Kraken, IBKR)
// is populated, never both. Secrets are encrypted at rest by the credential
// vault before they reach this struct.
type LinkedAccount struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID   string `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_platform" json:"user_id"`
	Platform string `gorm:"type:varchar(20);not null;uniqueIndex:idx_user_platform" json:"platform"`

	AccessToken    *string    `gorm:"type:text" json:"-"`
	RefreshToken   *string    `gorm:"type:text" json:"-"`
	TokenExpiresAt *time.Time `gorm:"type:timestamptz" json:"token_expires_at,omitempty"`

	APIKey    *string `gorm:"type:text" json:"-"`
	APISecret *string `gorm:"type:text" json:"-"`

	IsActive   bool       `gorm:"not null;default:true;index" json:"is_active"`
	LastSyncAt *time.Time `gorm:"type:timestamptz" json:"last_sync_at"`
	SyncError  *string    `gorm:"type:text" json:"sync_error"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (LinkedAccount) TableName() string {
	return "linked_accounts"
}
