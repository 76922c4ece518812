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

// ArbitrageScanner finds cross-bookmaker surebets: events where backing
// every outcome at the best available odds returns more than the total
// stake regardless of result.
type ArbitrageScanner struct {
	cfg    config.OddsFeedConfig
	client *oddsfeed.Client
	log    *zap.Logger
}

func NewArbitrageScanner(cfg config.OddsFeedConfig, client *oddsfeed.Client, log *zap.Logger) *ArbitrageScanner {
	return &ArbitrageScanner{cfg: cfg, client: client, log: log}
}

func (s *ArbitrageScanner) Name() string { return "Arbitrage scanner" }
func (s *ArbitrageScanner) Kind() string { return KindArbitrage }

func (s *ArbitrageScanner) Available() error {
	if s.cfg.APIKey == "" {
		return errors.New("ODDS_API_KEY not configured")
	}
	return nil
}

type bestPrice struct {
	price     float64
	bookmaker string
}

// bestOutcomePrices collapses all bookmakers into the best price per outcome.
func bestOutcomePrices(event oddsfeed.Event) map[string]bestPrice {
	best := make(map[string]bestPrice)
	for _, bookmaker := range event.Bookmakers {
		for _, market := range bookmaker.Markets {
			if market.Key != "h2h" {
				continue
			}
			for _, outcome := range market.Outcomes {
				if outcome.Price <= 1 {
					continue
				}
				if current, ok := best[outcome.Name]; !ok || outcome.Price > current.price {
					best[outcome.Name] = bestPrice{price: outcome.Price, bookmaker: bookmaker.Title}
				}
			}
		}
	}
	return best
}

func (s *ArbitrageScanner) Scan(ctx context.Context) ([]Record, error) {
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

func (s *ArbitrageScanner) evaluate(event oddsfeed.Event) (Record, bool) {
	best := bestOutcomePrices(event)
	if len(best) < 2 {
		return Record{}, false
	}

	impliedSum := 0.0
	legs := make([]map[string]any, 0, len(best))
	for name, price := range best {
		impliedSum += 1 / price.price
		legs = append(legs, map[string]any{
			"outcome":   name,
			"odds":      price.price,
			"bookmaker": price.bookmaker,
		})
	}
	if impliedSum >= 1 {
		return Record{}, false
	}

	// Guaranteed return as a percentage of total stake.
	profit := (1/impliedSum - 1) * 100
	confidence := 70 + int(math.Min(profit*5, 25))
	eventTime := event.CommenceTime

	return Record{
		Kind:        KindArbitrage,
		Title:       fmt.Sprintf("%s vs %s surebet (%.2f%%)", event.HomeTeam, event.AwayTeam, profit),
		Description: fmt.Sprintf("%s: backing all outcomes at best odds locks in %.2f%% regardless of result", event.SportTitle, profit),
		Confidence:  confidence,
		Expected:    profit,
		EventTime:   &eventTime,
		Data: map[string]any{
			"event_id":    event.ID,
			"sport":       event.SportKey,
			"legs":        legs,
			"implied_sum": impliedSum,
		},
	}, true
}
