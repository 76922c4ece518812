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

// minValueEdge is the positive expected value, in percent, below which an
// outlier price is treated as noise rather than a value bet.
const minValueEdge = 3.0

// ValueBetsScanner flags outcomes priced above the market consensus: a
// bookmaker offering odds implying a lower probability than the average of
// its peers is giving away expected value.
type ValueBetsScanner struct {
	cfg    config.OddsFeedConfig
	client *oddsfeed.Client
	log    *zap.Logger
}

func NewValueBetsScanner(cfg config.OddsFeedConfig, client *oddsfeed.Client, log *zap.Logger) *ValueBetsScanner {
	return &ValueBetsScanner{cfg: cfg, client: client, log: log}
}

func (s *ValueBetsScanner) Name() string { return "Value bets scanner" }
func (s *ValueBetsScanner) Kind() string { return KindValueBet }

func (s *ValueBetsScanner) Available() error {
	if s.cfg.APIKey == "" {
		return errors.New("ODDS_API_KEY not configured")
	}
	return nil
}

func (s *ValueBetsScanner) Scan(ctx context.Context) ([]Record, error) {
	var records []Record
	for _, sport := range s.cfg.Sports {
		events, err := s.client.GetOdds(ctx, sport)
		if err != nil {
			return nil, fmt.Errorf("fetch %s odds: %w", sport, err)
		}
		for _, event := range events {
			records = append(records, s.evaluate(event)...)
		}
	}
	return records, nil
}

type quotedPrice struct {
	price     float64
	bookmaker string
}

func (s *ValueBetsScanner) evaluate(event oddsfeed.Event) []Record {
	quotes := make(map[string][]quotedPrice)
	for _, bookmaker := range event.Bookmakers {
		for _, market := range bookmaker.Markets {
			if market.Key != "h2h" {
				continue
			}
			for _, outcome := range market.Outcomes {
				if outcome.Price <= 1 {
					continue
				}
				quotes[outcome.Name] = append(quotes[outcome.Name], quotedPrice{
					price:     outcome.Price,
					bookmaker: bookmaker.Title,
				})
			}
		}
	}

	var records []Record
	for outcome, prices := range quotes {
		// Consensus needs at least three books to mean anything.
		if len(prices) < 3 {
			continue
		}
		impliedSum := 0.0
		for _, q := range prices {
			impliedSum += 1 / q.price
		}
		consensus := impliedSum / float64(len(prices))

		for _, q := range prices {
			// EV of a 1-unit stake at this price against consensus probability.
			ev := (consensus*q.price - 1) * 100
			if ev < minValueEdge {
				continue
			}
			confidence := 60 + int(math.Min(ev*2, 30))
			eventTime := event.CommenceTime
			records = append(records, Record{
				Kind:        KindValueBet,
				Title:       fmt.Sprintf("%s @ %.2f (%s)", outcome, q.price, event.SportTitle),
				Description: fmt.Sprintf("%s vs %s: %s prices %s at %.2f against a %.1f%% consensus probability, %.1f%% EV", event.HomeTeam, event.AwayTeam, q.bookmaker, outcome, q.price, consensus*100, ev),
				Confidence:  confidence,
				Expected:    ev,
				EventTime:   &eventTime,
				Data: map[string]any{
					"event_id":    event.ID,
					"sport":       event.SportKey,
					"outcome":     outcome,
					"odds":        q.price,
					"bookmaker":   q.bookmaker,
					"consensus_p": consensus,
				},
			})
		}
	}
	return records
}
