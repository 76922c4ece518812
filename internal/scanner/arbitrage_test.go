package scanner

import (
	"testing"
	"time"

	"tradesmart/internal/client/oddsfeed"
)

func h2hEvent(home, away string, books map[string][2]float64) oddsfeed.Event {
	event := oddsfeed.Event{
		ID:           "evt-1",
		SportKey:     "soccer_epl",
		SportTitle:   "EPL",
		CommenceTime: time.Now().Add(48 * time.Hour),
		HomeTeam:     home,
		AwayTeam:     away,
	}
	for name, prices := range books {
		event.Bookmakers = append(event.Bookmakers, oddsfeed.Bookmaker{
			Key:   name,
			Title: name,
			Markets: []oddsfeed.Market{{
				Key: "h2h",
				Outcomes: []oddsfeed.Outcome{
					{Name: home, Price: prices[0]},
					{Name: away, Price: prices[1]},
				},
			}},
		})
	}
	return event
}

func TestArbitrageEvaluateFindsSurebet(t *testing.T) {
	s := &ArbitrageScanner{}
	// Best home 2.10 at bookA, best away 2.10 at bookB: implied sum 0.952.
	event := h2hEvent("Home", "Away", map[string][2]float64{
		"bookA": {2.10, 1.80},
		"bookB": {1.85, 2.10},
	})

	record, ok := s.evaluate(event)
	if !ok {
		t.Fatalf("expected a surebet")
	}
	if record.Kind != KindArbitrage {
		t.Fatalf("expected kind %s, got %s", KindArbitrage, record.Kind)
	}
	if record.Expected < 4.9 || record.Expected > 5.1 {
		t.Fatalf("expected about 5%% profit, got %.2f", record.Expected)
	}
	if record.Confidence < 70 || record.Confidence > 100 {
		t.Fatalf("confidence out of range: %d", record.Confidence)
	}
	if record.EventTime == nil {
		t.Fatalf("expected event time on arbitrage record")
	}
}

func TestArbitrageEvaluateRejectsOverround(t *testing.T) {
	s := &ArbitrageScanner{}
	// Typical book with margin: implied sum above 1.
	event := h2hEvent("Home", "Away", map[string][2]float64{
		"bookA": {1.90, 1.90},
		"bookB": {1.85, 1.95},
	})

	if _, ok := s.evaluate(event); ok {
		t.Fatalf("should not flag an overround market")
	}
}

func TestValueBetsEvaluateFlagsOutlier(t *testing.T) {
	s := &ValueBetsScanner{}
	// Three books agree near 2.00, one prices the home side at 2.45.
	event := h2hEvent("Home", "Away", map[string][2]float64{
		"bookA": {2.00, 1.95},
		"bookB": {1.98, 1.97},
		"bookC": {2.02, 1.93},
		"bookD": {2.45, 1.60},
	})

	records := s.evaluate(event)
	found := false
	for _, record := range records {
		if record.Data["bookmaker"] == "bookD" && record.Data["outcome"] == "Home" {
			found = true
			if record.Expected < minValueEdge {
				t.Fatalf("outlier EV %.2f below threshold", record.Expected)
			}
		}
	}
	if !found {
		t.Fatalf("expected the 2.45 outlier to be flagged, got %d records", len(records))
	}
}

func TestValueBetsEvaluateNeedsConsensus(t *testing.T) {
	s := &ValueBetsScanner{}
	event := h2hEvent("Home", "Away", map[string][2]float64{
		"bookA": {2.00, 1.95},
		"bookB": {2.45, 1.60},
	})

	if records := s.evaluate(event); len(records) != 0 {
		t.Fatalf("two books are not a consensus, got %d records", len(records))
	}
}

func TestScannersReportMissingKeys(t *testing.T) {
	arb := &ArbitrageScanner{}
	if err := arb.Available(); err == nil || err.Error() != "ODDS_API_KEY not configured" {
		t.Fatalf("unexpected availability error: %v", err)
	}
	stocks := &StocksScanner{}
	if err := stocks.Available(); err == nil || err.Error() != "MARKET_DATA_API_KEY not configured" {
		t.Fatalf("unexpected availability error: %v", err)
	}
	crypto := &CryptoScanner{}
	if err := crypto.Available(); err != nil {
		t.Fatalf("crypto scanner needs no key, got %v", err)
	}
}
