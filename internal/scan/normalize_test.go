package scan

import (
	"encoding/json"
	"testing"
	"time"

	"tradesmart/internal/models"
	"tradesmart/internal/scanner"
)

func TestNormalizeCategories(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		kind        string
		category    string
		subcategory string
	}{
		{scanner.KindArbitrage, models.CategoryArbitrage, "surebet"},
		{scanner.KindMatchedBetting, models.CategoryArbitrage, "matched_betting"},
		{scanner.KindValueBet, models.CategoryValueBet, "h2h"},
		{scanner.KindStock, models.CategoryStock, "momentum"},
		{scanner.KindCrypto, models.CategoryCrypto, "funding"},
	}
	for _, tc := range cases {
		opp := Normalize(scanner.Record{Kind: tc.kind, Title: "t", Confidence: 50}, nil, now)
		if opp.Category != tc.category || opp.Subcategory != tc.subcategory {
			t.Fatalf("%s: got %s/%s, want %s/%s", tc.kind, opp.Category, opp.Subcategory, tc.category, tc.subcategory)
		}
		if opp.ID == "" {
			t.Fatalf("%s: missing id", tc.kind)
		}
		if opp.Status != models.StatusOpen {
			t.Fatalf("%s: expected open status, got %s", tc.kind, opp.Status)
		}
	}
}

func TestNormalizeExpiry(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	eventTime := now.Add(72 * time.Hour)
	nextFunding := now.Add(5 * time.Hour)

	arb := Normalize(scanner.Record{Kind: scanner.KindArbitrage, EventTime: &eventTime}, nil, now)
	if arb.ExpiresAt == nil || !arb.ExpiresAt.Equal(eventTime) {
		t.Fatalf("arbitrage should expire at event time, got %v", arb.ExpiresAt)
	}

	matched := Normalize(scanner.Record{Kind: scanner.KindMatchedBetting}, nil, now)
	if matched.ExpiresAt == nil || !matched.ExpiresAt.Equal(now.Add(7*24*time.Hour)) {
		t.Fatalf("matched betting should expire in 7 days, got %v", matched.ExpiresAt)
	}

	stock := Normalize(scanner.Record{Kind: scanner.KindStock}, nil, now)
	if stock.ExpiresAt == nil || !stock.ExpiresAt.Equal(now.Add(24*time.Hour)) {
		t.Fatalf("stock should expire in 24h, got %v", stock.ExpiresAt)
	}

	crypto := Normalize(scanner.Record{Kind: scanner.KindCrypto, NextFunding: &nextFunding}, nil, now)
	if crypto.ExpiresAt == nil || !crypto.ExpiresAt.Equal(nextFunding) {
		t.Fatalf("crypto should expire at next funding, got %v", crypto.ExpiresAt)
	}

	// A stale event time falls back to the short window.
	past := now.Add(-time.Hour)
	stale := Normalize(scanner.Record{Kind: scanner.KindValueBet, EventTime: &past}, nil, now)
	if stale.ExpiresAt == nil || !stale.ExpiresAt.Equal(now.Add(24*time.Hour)) {
		t.Fatalf("stale event should fall back to 24h, got %v", stale.ExpiresAt)
	}
}

func TestNormalizeClampsConfidence(t *testing.T) {
	now := time.Now()
	if opp := Normalize(scanner.Record{Kind: scanner.KindStock, Confidence: 140}, nil, now); opp.ConfidenceScore != 100 {
		t.Fatalf("expected clamp to 100, got %d", opp.ConfidenceScore)
	}
	if opp := Normalize(scanner.Record{Kind: scanner.KindStock, Confidence: -5}, nil, now); opp.ConfidenceScore != 0 {
		t.Fatalf("expected clamp to 0, got %d", opp.ConfidenceScore)
	}
}

func TestNormalizeData(t *testing.T) {
	now := time.Now()
	record := scanner.Record{
		Kind: scanner.KindCrypto,
		Data: map[string]any{"symbol": "BTCUSDT", "funding_rate": 0.0005},
	}
	userID := "u1"
	opp := Normalize(record, &userID, now)
	if opp.UserID == nil || *opp.UserID != "u1" {
		t.Fatalf("expected user id carried through")
	}
	var decoded map[string]any
	if err := json.Unmarshal(opp.Data, &decoded); err != nil {
		t.Fatalf("data not valid json: %v", err)
	}
	if decoded["symbol"] != "BTCUSDT" {
		t.Fatalf("unexpected data payload: %v", decoded)
	}
}

func TestTierLimit(t *testing.T) {
	cases := map[string]int{
		"free":       0,
		"starter":    100,
		"pro":        500,
		"enterprise": Unlimited,
		"unlimited":  Unlimited,
		"PRO":        500,
		"":           0,
		"bogus":      0,
	}
	for tier, want := range cases {
		if got := TierLimit(tier); got != want {
			t.Fatalf("TierLimit(%q) = %d, want %d", tier, got, want)
		}
	}
}
