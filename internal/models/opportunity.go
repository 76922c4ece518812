package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Opportunity categories. The set is closed; scanners map onto it at
// normalization time.
const (
	CategoryArbitrage = "arbitrage"
	CategoryValueBet  = "value_bet"
	CategoryStock     = "stock"
	CategoryCrypto    = "crypto"
)

// Opportunity statuses. "expired" is never stored: it is derived at read
// time from ExpiresAt (see EffectiveStatus).
const (
	StatusOpen      = "open"
	StatusTaken     = "taken"
	StatusDismissed = "dismissed"
	StatusExpired   = "expired"
)

// Opportunity is the normalized record every scanner's output is mapped onto.
//
// ExpectedValue units are deliberately not uniform across categories:
// percent return for betting strategies, percent move for stocks, annualized
// percent for crypto funding. ExpectedValueUnit records which one applies.
type Opportunity struct {
	ID     string  `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID *string `gorm:"type:varchar(64);index" json:"user_id"`

	Category    string `gorm:"type:varchar(20);not null;index" json:"category"`
	Subcategory string `gorm:"type:varchar(50);index" json:"subcategory"`
	Title       string `gorm:"type:varchar(200);not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`

	ConfidenceScore   int             `gorm:"not null" json:"confidence_score"`
	ExpectedValue     decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"expected_value"`
	ExpectedValueUnit string          `gorm:"type:varchar(20);not null" json:"expected_value_unit"`

	Data datatypes.JSON `gorm:"type:jsonb" json:"data"`

	ExpiresAt *time.Time `gorm:"type:timestamptz;index" json:"expires_at"`
	Status    string     `gorm:"type:varchar(20);not null;index;default:'open'" json:"status"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Opportunity) TableName() string {
	return "opportunities"
}

// EffectiveStatus reports "expired" for open opportunities whose ExpiresAt
// has passed. The stored status is untouched; expiry is not a transition.
func (o Opportunity) EffectiveStatus(now time.Time) string {
	if o.Status == StatusOpen && o.ExpiresAt != nil && o.ExpiresAt.Before(now) {
		return StatusExpired
	}
	return o.Status
}
