package scan

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"tradesmart/internal/models"
	"tradesmart/internal/scanner"
)

const (
	matchedBettingTTL = 7 * 24 * time.Hour
	stockTTL          = 24 * time.Hour
)

// expected-value units per record kind.
const (
	unitPercentReturn    = "percent_return"
	unitPercentRetention = "percent_retention"
	unitPercentMove      = "percent_move"
	unitPercentAnnual    = "percent_annualized"
)

// Normalize converts one raw scanner record into the common opportunity
// shape. Matched betting stays a subcategory of arbitrage: the two share a
// strategy family and the product filters them together.
func Normalize(record scanner.Record, userID *string, now time.Time) models.Opportunity {
	category, subcategory, unit := classify(record.Kind)

	confidence := record.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	var data datatypes.JSON
	if len(record.Data) > 0 {
		if encoded, err := json.Marshal(record.Data); err == nil {
			data = datatypes.JSON(encoded)
		}
	}

	return models.Opportunity{
		ID:                uuid.NewString(),
		UserID:            userID,
		Category:          category,
		Subcategory:       subcategory,
		Title:             record.Title,
		Description:       record.Description,
		ConfidenceScore:   confidence,
		ExpectedValue:     decimal.NewFromFloat(record.Expected),
		ExpectedValueUnit: unit,
		Data:              data,
		ExpiresAt:         expiry(record, now),
		Status:            models.StatusOpen,
	}
}

func classify(kind string) (category, subcategory, unit string) {
	switch kind {
	case scanner.KindArbitrage:
		return models.CategoryArbitrage, "surebet", unitPercentReturn
	case scanner.KindMatchedBetting:
		return models.CategoryArbitrage, "matched_betting", unitPercentRetention
	case scanner.KindValueBet:
		return models.CategoryValueBet, "h2h", unitPercentReturn
	case scanner.KindStock:
		return models.CategoryStock, "momentum", unitPercentMove
	case scanner.KindCrypto:
		return models.CategoryCrypto, "funding", unitPercentAnnual
	default:
		return models.CategoryArbitrage, kind, unitPercentReturn
	}
}

// expiry picks when the opportunity stops being actionable: the event start
// for event-bound bets, the next funding settlement for crypto, and fixed
// windows otherwise.
func expiry(record scanner.Record, now time.Time) *time.Time {
	switch record.Kind {
	case scanner.KindArbitrage, scanner.KindValueBet:
		if record.EventTime != nil && record.EventTime.After(now) {
			t := record.EventTime.UTC()
			return &t
		}
		t := now.Add(stockTTL).UTC()
		return &t
	case scanner.KindMatchedBetting:
		t := now.Add(matchedBettingTTL).UTC()
		return &t
	case scanner.KindStock:
		t := now.Add(stockTTL).UTC()
		return &t
	case scanner.KindCrypto:
		if record.NextFunding != nil && record.NextFunding.After(now) {
			t := record.NextFunding.UTC()
			return &t
		}
		t := now.Add(8 * time.Hour).UTC()
		return &t
	default:
		t := now.Add(stockTTL).UTC()
		return &t
	}
}
