package scanner

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"tradesmart/internal/client/funding"
	"tradesmart/internal/config"
)

// minFundingRate is the absolute per-interval funding rate below which a
// perpetual carries no capturable premium.
const minFundingRate = 0.0003

// fundingIntervalsPerYear annualizes an 8-hour funding rate.
const fundingIntervalsPerYear = 3 * 365

// CryptoScanner surfaces perpetual funding-rate captures: when funding runs
// hot, holding the opposite delta-hedged position collects the payments.
type CryptoScanner struct {
	cfg    config.CryptoDataConfig
	client *funding.Client
	log    *zap.Logger
}

func NewCryptoScanner(cfg config.CryptoDataConfig, client *funding.Client, log *zap.Logger) *CryptoScanner {
	return &CryptoScanner{cfg: cfg, client: client, log: log}
}

func (s *CryptoScanner) Name() string { return "Crypto scanner" }
func (s *CryptoScanner) Kind() string { return KindCrypto }

// Available always reports nil: the funding endpoint is public.
func (s *CryptoScanner) Available() error {
	return nil
}

func (s *CryptoScanner) Scan(ctx context.Context) ([]Record, error) {
	var records []Record
	for _, symbol := range s.cfg.Symbols {
		index, err := s.client.GetPremiumIndex(ctx, symbol)
		if err != nil {
			if s.log != nil {
				s.log.Warn("premium index fetch failed", zap.String("symbol", symbol), zap.Error(err))
			}
			continue
		}
		if math.Abs(index.LastFundingRate) < minFundingRate {
			continue
		}
		records = append(records, s.toRecord(index))
	}
	return records, nil
}

func (s *CryptoScanner) toRecord(index funding.PremiumIndex) Record {
	annualized := index.LastFundingRate * fundingIntervalsPerYear * 100
	side := "short perp, long spot"
	if index.LastFundingRate < 0 {
		side = "long perp, short spot"
	}
	confidence := 60 + int(math.Min(math.Abs(annualized), 30))
	nextFunding := index.NextFundingTime

	return Record{
		Kind:        KindCrypto,
		Title:       fmt.Sprintf("%s funding capture (%.1f%% annualized)", index.Symbol, annualized),
		Description: fmt.Sprintf("%s funding at %.4f%% per interval; %s collects the payment while staying delta neutral", index.Symbol, index.LastFundingRate*100, side),
		Confidence:  confidence,
		Expected:    annualized,
		NextFunding: &nextFunding,
		Data: map[string]any{
			"symbol":       index.Symbol,
			"funding_rate": index.LastFundingRate,
			"mark_price":   index.MarkPrice,
			"position":     side,
		},
	}
}
