package scanner

import (
	"context"
	"time"
)

// Record kinds. These are scanner outputs, not storage categories; the scan
// pipeline maps them onto opportunity categories during normalization.
const (
	KindArbitrage      = "arbitrage"
	KindValueBet       = "value_bets"
	KindMatchedBetting = "matched_betting"
	KindStock          = "stocks"
	KindCrypto         = "crypto"
)

// Record is one raw finding from a scanner before normalization.
type Record struct {
	Kind        string
	Title       string
	Description string

	// Confidence in [0,100].
	Confidence int

	// Expected is the edge in the kind's native unit: percent return for
	// betting kinds, percent move for stocks, annualized funding percent
	// for crypto.
	Expected float64

	// EventTime is when the underlying event starts, when the strategy has
	// one. NextFunding is the next funding settlement for crypto records.
	EventTime   *time.Time
	NextFunding *time.Time

	Data map[string]any
}

// Scanner is one opportunity source. Available reports nil when the scanner
// has the configuration it needs; otherwise it returns the reason it cannot
// run, which surfaces verbatim in the scan report.
type Scanner interface {
	Name() string
	Kind() string
	Available() error
	Scan(ctx context.Context) ([]Record, error)
}
