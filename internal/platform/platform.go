package platform

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Betfair = "betfair"
	Kraken  = "kraken"
	IBKR    = "ibkr"

	// DefaultTradeLookback bounds a trade-history pull when the caller has
	// no previous sync point.
	DefaultTradeLookback = 30 * 24 * time.Hour
)

// Credentials carries whichever secret material a platform needs. OAuth
// platforms populate the token pair, API-key platforms the key pair.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	APIKey       string
	APISecret    string
}

// Balance is an account funds snapshot in the platform's base currency.
type Balance struct {
	Currency  string
	Available decimal.Decimal
	Exposure  decimal.Decimal
	Total     decimal.Decimal
}

// Position is an open holding or unmatched exposure on the platform.
type Position struct {
	Market       string
	Side         string
	Size         decimal.Decimal
	AvgPrice     decimal.Decimal
	UnrealizedPL decimal.Decimal
}

// Trade is a settled execution from the platform's history.
type Trade struct {
	ExternalID string
	Market     string
	Side       string
	Size       decimal.Decimal
	Price      decimal.Decimal
	Fee        decimal.Decimal
	ProfitLoss decimal.Decimal
	ExecutedAt time.Time
}

// Client is the capability surface every linked platform exposes. A platform
// that cannot serve an operation returns a KindUnsupported error rather than
// omitting the method.
type Client interface {
	Name() string
	// ValidateCredentials reports whether the credentials behind this client
	// still work, using the platform's cheapest authenticated call. It never
	// returns an error; any failure degrades to false.
	ValidateCredentials(ctx context.Context) bool
	GetBalance(ctx context.Context) (Balance, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetTrades(ctx context.Context, since time.Time) ([]Trade, error)
}

// validateByBalance backs ValidateCredentials for platforms whose cheapest
// authenticated call is the funds lookup.
func validateByBalance(ctx context.Context, c Client) bool {
	_, err := c.GetBalance(ctx)
	return err == nil
}
