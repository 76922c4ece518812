package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// AccountSnapshot is a point-in-time balance captured during an account sync.
// The portfolio tracker screens read these; the sync job only appends.
type AccountSnapshot struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	LinkedAccountID uint64 `gorm:"not null;index" json:"linked_account_id"`
	Platform        string `gorm:"type:varchar(20);not null;index" json:"platform"`

	Currency  string          `gorm:"type:varchar(10);not null" json:"currency"`
	Available decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"available"`
	Exposure  decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"exposure"`
	Total     decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"total"`

	CapturedAt time.Time `gorm:"type:timestamptz;not null;index" json:"captured_at"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (AccountSnapshot) TableName() string {
	return "account_snapshots"
}

// AccountTrade is a settled trade pulled from a platform's history endpoint.
// ExternalID deduplicates re-synced windows per linked account.
type AccountTrade struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	LinkedAccountID uint64 `gorm:"not null;uniqueIndex:idx_trade_account_ext" json:"linked_account_id"`
	ExternalID      string `gorm:"type:varchar(100);not null;uniqueIndex:idx_trade_account_ext" json:"external_id"`
	Platform        string `gorm:"type:varchar(20);not null;index" json:"platform"`

	Market string `gorm:"type:varchar(200)" json:"market"`
	Side   string `gorm:"type:varchar(10)" json:"side"`

	Size       decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"size"`
	Price      decimal.Decimal `gorm:"type:numeric(20,10);not null" json:"price"`
	Fee        decimal.Decimal `gorm:"type:numeric(20,10);not null" json:"fee"`
	ProfitLoss decimal.Decimal `gorm:"column:profit_loss;type:numeric(30,10);not null" json:"profit_loss"`

	Raw datatypes.JSON `gorm:"type:jsonb" json:"raw,omitempty"`

	ExecutedAt time.Time `gorm:"type:timestamptz;not null;index" json:"executed_at"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (AccountTrade) TableName() string {
	return "account_trades"
}
