package scanner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"tradesmart/internal/client/marketdata"
	"tradesmart/internal/config"
)

// minStockMove is the intraday percent move below which a symbol is not
// worth surfacing.
const minStockMove = 1.5

// StocksScanner ranks the watchlist by intraday move and keeps the top
// movers: sharp dips read as mean-reversion entries, sharp rallies as
// momentum continuations.
type StocksScanner struct {
	cfg    config.MarketDataConfig
	client *marketdata.Client
	log    *zap.Logger
}

func NewStocksScanner(cfg config.MarketDataConfig, client *marketdata.Client, log *zap.Logger) *StocksScanner {
	return &StocksScanner{cfg: cfg, client: client, log: log}
}

func (s *StocksScanner) Name() string { return "Stocks scanner" }
func (s *StocksScanner) Kind() string { return KindStock }

func (s *StocksScanner) Available() error {
	if s.cfg.APIKey == "" {
		return errors.New("MARKET_DATA_API_KEY not configured")
	}
	return nil
}

type mover struct {
	symbol string
	quote  *marketdata.Quote
}

func (s *StocksScanner) Scan(ctx context.Context) ([]Record, error) {
	movers := make([]mover, 0, len(s.cfg.Symbols))
	for _, symbol := range s.cfg.Symbols {
		quote, err := s.client.GetQuote(ctx, symbol)
		if err != nil {
			// One bad symbol should not sink the whole scan.
			if s.log != nil {
				s.log.Warn("quote fetch failed", zap.String("symbol", symbol), zap.Error(err))
			}
			continue
		}
		if quote.Current <= 0 || math.Abs(quote.PercentChange) < minStockMove {
			continue
		}
		movers = append(movers, mover{symbol: symbol, quote: quote})
	}

	sort.Slice(movers, func(i, j int) bool {
		return math.Abs(movers[i].quote.PercentChange) > math.Abs(movers[j].quote.PercentChange)
	})
	topN := s.cfg.TopN
	if topN <= 0 {
		topN = 10
	}
	if len(movers) > topN {
		movers = movers[:topN]
	}

	records := make([]Record, 0, len(movers))
	for _, m := range movers {
		records = append(records, s.toRecord(m))
	}
	return records, nil
}

func (s *StocksScanner) toRecord(m mover) Record {
	change := m.quote.PercentChange
	signal := "momentum"
	action := "rally continuation"
	if change < 0 {
		signal = "mean_reversion"
		action = "dip entry"
	}
	confidence := 55 + int(math.Min(math.Abs(change)*4, 35))

	return Record{
		Kind:        KindStock,
		Title:       fmt.Sprintf("%s %+.2f%% intraday (%s)", m.symbol, change, action),
		Description: fmt.Sprintf("%s moved %+.2f%% to %.2f against a previous close of %.2f", m.symbol, change, m.quote.Current, m.quote.PrevClose),
		Confidence:  confidence,
		Expected:    change,
		Data: map[string]any{
			"symbol":     m.symbol,
			"price":      m.quote.Current,
			"prev_close": m.quote.PrevClose,
			"day_high":   m.quote.High,
			"day_low":    m.quote.Low,
			"signal":     signal,
		},
	}
}
