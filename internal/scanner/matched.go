package scanner

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"tradesmart/internal/client/oddsfeed"
	"tradesmart/internal/config"
)

// maxMatchedSpread is the widest back/lay style spread, as a fraction of the
// back odds, still worth converting a free bet through.
const maxMatchedSpread = 0.08

// MatchedBettingScanner finds back prices closely matched by an opposing
// price at another bookmaker, suitable for free-bet conversion with low
// qualifying loss.
type MatchedBettingScanner struct {
	cfg    config.OddsFeedConfig
	client *oddsfeed.Client
	log    *zap.Logger
}

func NewMatchedBettingScanner(cfg config.OddsFeedConfig, client *oddsfeed.Client, log *zap.Logger) *MatchedBettingScanner {
	return &MatchedBettingScanner{cfg: cfg, client: client, log: log}
}

func (s *MatchedBettingScanner) Name() string { return "Matched betting scanner" }
func (s *MatchedBettingScanner) Kind() string { return KindMatchedBetting }

func (s *MatchedBettingScanner) Available() error {
	if s.cfg.APIKey == "" {
		return errors.New("ODDS_API_KEY not configured")
	}
	return nil
}

func (s *MatchedBettingScanner) Scan(ctx context.Context) ([]Record, error) {
	var records []Record
	for _, sport := range s.cfg.Sports {
		events, err := s.client.GetOdds(ctx, sport)
		if err != nil {
			return nil, fmt.Errorf("fetch %s odds: %w", sport, err)
		}
		for _, event := range events {
			if record, ok := s.evaluate(event); ok {
				records = append(records, record)
			}
		}
	}
	return records, nil
}

func (s *MatchedBettingScanner) evaluate(event oddsfeed.Event) (Record, bool) {
	best := bestOutcomePrices(event)
	if len(best) < 2 {
		return Record{}, false
	}

	// Pick the outcome whose best price is tightest against the rest of the
	// book: that is the cheapest leg to cover elsewhere.
	var backOutcome string
	var back bestPrice
	tightest := math.MaxFloat64
	for name, price := range best {
		coverSum := 0.0
		for other, otherPrice := range best {
			if other == name {
				continue
			}
			coverSum += 1 / otherPrice.price
		}
		if coverSum <= 0 {
			continue
		}
		// Effective lay odds implied by covering every other outcome.
		layOdds := 1 / coverSum
		spread := (layOdds - price.price) / price.price
		if spread < 0 {
			spread = -spread
		}
		if spread < tightest {
			tightest = spread
			backOutcome = name
			back = price
		}
	}
	if backOutcome == "" || tightest > maxMatchedSpread {
		return Record{}, false
	}

	// Free-bet retention improves as the spread narrows; 80% at a perfect
	// match is the usual rule of thumb.
	retention := 80 * (1 - tightest/maxMatchedSpread*0.25)
	confidence := 65 + int(math.Min((maxMatchedSpread-tightest)*400, 25))
	eventTime := event.CommenceTime

	return Record{
		Kind:        KindMatchedBetting,
		Title:       fmt.Sprintf("%s vs %s free-bet conversion (%.0f%% retention)", event.HomeTeam, event.AwayTeam, retention),
		Description: fmt.Sprintf("%s: back %s at %.2f with %s, cover remaining outcomes at best market prices", event.SportTitle, backOutcome, back.price, back.bookmaker),
		Confidence:  confidence,
		Expected:    retention,
		EventTime:   &eventTime,
		Data: map[string]any{
			"event_id":     event.ID,
			"sport":        event.SportKey,
			"back_outcome": backOutcome,
			"back_odds":    back.price,
			"bookmaker":    back.bookmaker,
			"spread":       tightest,
		},
	}, true
}
