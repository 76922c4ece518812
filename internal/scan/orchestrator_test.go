package scan

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"tradesmart/internal/ai"
	"tradesmart/internal/models"
	"tradesmart/internal/repository"
	"tradesmart/internal/scanner"
)

type fakeRepo struct {
	repository.Repository

	inserted    []models.Opportunity
	insertErr   error
	usageCalls  int
	usageUsed   int
	usageAllow  bool
	usageErr    error
	usageUserID string
	usageLimit  int
}

func (f *fakeRepo) InsertOpportunities(ctx context.Context, items []models.Opportunity) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, items...)
	return nil
}

func (f *fakeRepo) IncrementScanUsage(ctx context.Context, userID, day string, limit int) (int, bool, error) {
	f.usageCalls++
	f.usageUserID = userID
	f.usageLimit = limit
	return f.usageUsed, f.usageAllow, f.usageErr
}

type fakeScanner struct {
	name        string
	kind        string
	unavailable error
	records     []scanner.Record
	scanErr     error
	delay       time.Duration
}

func (f *fakeScanner) Name() string     { return f.name }
func (f *fakeScanner) Kind() string     { return f.kind }
func (f *fakeScanner) Available() error { return f.unavailable }

func (f *fakeScanner) Scan(ctx context.Context) ([]scanner.Record, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.records, f.scanErr
}

type fakeEnricher struct {
	configured bool
	minConf    int
	err        error

	mu    sync.Mutex
	calls int
}

func (f *fakeEnricher) Configured() bool   { return f.configured }
func (f *fakeEnricher) MinConfidence() int { return f.minConf }

func (f *fakeEnricher) Analyze(ctx context.Context, opp models.Opportunity) (*ai.Analysis, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &ai.Analysis{Summary: "ok", RiskLevel: "low", Recommendation: "act"}, nil
}

type fakeAlerter struct {
	sent  int
	calls int
}

func (f *fakeAlerter) SendBatch(ctx context.Context, opportunities []models.Opportunity) int {
	f.calls++
	return f.sent
}

func arbRecord(confidence int) scanner.Record {
	return scanner.Record{
		Kind:       scanner.KindArbitrage,
		Title:      "test surebet",
		Confidence: confidence,
		Expected:   3.5,
	}
}

func TestRunRejectsInvalidScanType(t *testing.T) {
	o := NewOrchestrator(&fakeRepo{}, nil, nil, nil, time.Second, nil)
	for _, scanType := range []string{"forex", ""} {
		_, err := o.Run(context.Background(), Request{ScanType: scanType})
		if !errors.Is(err, ErrInvalidScanType) {
			t.Fatalf("scanType %q: expected ErrInvalidScanType, got %v", scanType, err)
		}
	}
}

func TestRunMissingTierTreatedAsFree(t *testing.T) {
	repo := &fakeRepo{}
	o := NewOrchestrator(repo, nil, nil, nil, time.Second, nil)
	_, err := o.Run(context.Background(), Request{ScanType: TypeAll, UserID: "u1"})
	if !errors.Is(err, ErrFreeTier) {
		t.Fatalf("identified user without a tier must be treated as free, got %v", err)
	}
	if repo.usageCalls != 0 {
		t.Fatalf("free-tier treatment must not touch the usage counter")
	}
}

func TestRunFreeTierBlocked(t *testing.T) {
	repo := &fakeRepo{}
	o := NewOrchestrator(repo, nil, nil, nil, time.Second, nil)
	_, err := o.Run(context.Background(), Request{ScanType: TypeAll, UserID: "u1", UserTier: "free"})
	if !errors.Is(err, ErrFreeTier) {
		t.Fatalf("expected ErrFreeTier, got %v", err)
	}
	if repo.usageCalls != 0 {
		t.Fatalf("free tier must not touch the usage counter")
	}
}

func TestRunQuotaExceeded(t *testing.T) {
	repo := &fakeRepo{usageUsed: 100, usageAllow: false}
	o := NewOrchestrator(repo, nil, nil, nil, time.Second, nil)
	_, err := o.Run(context.Background(), Request{ScanType: TypeAll, UserID: "u1", UserTier: "starter"})
	var quota *QuotaExceededError
	if !errors.As(err, &quota) {
		t.Fatalf("expected QuotaExceededError, got %v", err)
	}
	if quota.Used != 100 || quota.Limit != 100 {
		t.Fatalf("unexpected quota numbers: %+v", quota)
	}
}

func TestRunUnlimitedTierSkipsCounter(t *testing.T) {
	repo := &fakeRepo{}
	o := NewOrchestrator(repo, nil, nil, nil, time.Second, nil)
	if _, err := o.Run(context.Background(), Request{ScanType: TypeAll, UserID: "u1", UserTier: "enterprise"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if repo.usageCalls != 0 {
		t.Fatalf("unlimited tier must not touch the usage counter")
	}
}

func TestRunAnonymousSkipsQuota(t *testing.T) {
	repo := &fakeRepo{}
	o := NewOrchestrator(repo, nil, nil, nil, time.Second, nil)
	if _, err := o.Run(context.Background(), Request{ScanType: TypeAll}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if repo.usageCalls != 0 {
		t.Fatalf("anonymous run must not touch the usage counter")
	}
}

func TestRunIsolatesScannerFailures(t *testing.T) {
	repo := &fakeRepo{usageAllow: true, usageUsed: 1}
	scanners := []scanner.Scanner{
		&fakeScanner{name: "Arbitrage scanner", kind: scanner.KindArbitrage, records: []scanner.Record{arbRecord(80)}},
		&fakeScanner{name: "Value bets scanner", kind: scanner.KindValueBet, scanErr: errors.New("feed down")},
		&fakeScanner{name: "Stocks scanner", kind: scanner.KindStock, unavailable: errors.New("MARKET_DATA_API_KEY not configured")},
	}
	o := NewOrchestrator(repo, scanners, nil, nil, time.Second, nil)

	result, err := o.Run(context.Background(), Request{ScanType: TypeAll, UserID: "u1", UserTier: "pro"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Opportunities) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(result.Opportunities))
	}
	if len(result.Errors) != 2 {
		t.Fatalf("expected 2 visible errors, got %v", result.Errors)
	}
	joined := strings.Join(result.Errors, " | ")
	if !strings.Contains(joined, "Value bets scanner failed: feed down") {
		t.Fatalf("missing scan failure in %q", joined)
	}
	if !strings.Contains(joined, "Stocks scanner unavailable: MARKET_DATA_API_KEY not configured") {
		t.Fatalf("missing availability failure in %q", joined)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("expected the surviving opportunity persisted, got %d", len(repo.inserted))
	}
}

func TestRunScannerTimeoutIsIsolated(t *testing.T) {
	repo := &fakeRepo{}
	scanners := []scanner.Scanner{
		&fakeScanner{name: "Arbitrage scanner", kind: scanner.KindArbitrage, records: []scanner.Record{arbRecord(75)}},
		&fakeScanner{name: "Crypto scanner", kind: scanner.KindCrypto, delay: time.Second},
	}
	o := NewOrchestrator(repo, scanners, nil, nil, 20*time.Millisecond, nil)

	result, err := o.Run(context.Background(), Request{ScanType: TypeAll})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Opportunities) != 1 {
		t.Fatalf("expected the fast scanner's opportunity, got %d", len(result.Opportunities))
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "Crypto scanner failed") {
		t.Fatalf("expected a timeout failure for the slow scanner, got %v", result.Errors)
	}
}

func TestRunBettingSelection(t *testing.T) {
	repo := &fakeRepo{}
	stocks := &fakeScanner{name: "Stocks scanner", kind: scanner.KindStock, records: []scanner.Record{{Kind: scanner.KindStock, Title: "x"}}}
	arb := &fakeScanner{name: "Arbitrage scanner", kind: scanner.KindArbitrage, records: []scanner.Record{arbRecord(75)}}
	matched := &fakeScanner{name: "Matched betting scanner", kind: scanner.KindMatchedBetting, records: []scanner.Record{{Kind: scanner.KindMatchedBetting, Title: "m", Confidence: 70}}}
	o := NewOrchestrator(repo, []scanner.Scanner{stocks, arb, matched}, nil, nil, time.Second, nil)

	result, err := o.Run(context.Background(), Request{ScanType: TypeBetting})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Opportunities) != 2 {
		t.Fatalf("betting scan should run only betting scanners, got %d opportunities", len(result.Opportunities))
	}
	for _, opp := range result.Opportunities {
		if opp.Category == models.CategoryStock {
			t.Fatalf("stock opportunity leaked into a betting scan")
		}
	}
}

func TestRunEnrichmentBestEffort(t *testing.T) {
	repo := &fakeRepo{}
	scanners := []scanner.Scanner{
		&fakeScanner{name: "Arbitrage scanner", kind: scanner.KindArbitrage, records: []scanner.Record{arbRecord(90), arbRecord(40)}},
	}
	enricher := &fakeEnricher{configured: true, minConf: 70}
	o := NewOrchestrator(repo, scanners, enricher, nil, time.Second, nil)

	result, err := o.Run(context.Background(), Request{ScanType: TypeArbitrage})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if enricher.calls != 1 {
		t.Fatalf("expected 1 enrichment call (one record below threshold), got %d", enricher.calls)
	}
	if result.AIAnalysisCount != 1 {
		t.Fatalf("expected aiAnalysisCount 1, got %d", result.AIAnalysisCount)
	}

	// Enrichment failure stays invisible.
	enricher = &fakeEnricher{configured: true, minConf: 70, err: errors.New("model down")}
	o = NewOrchestrator(&fakeRepo{}, scanners, enricher, nil, time.Second, nil)
	result, err = o.Run(context.Background(), Request{ScanType: TypeArbitrage})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.AIAnalysisCount != 0 {
		t.Fatalf("failed enrichment must not count, got %d", result.AIAnalysisCount)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("enrichment failures must stay invisible, got %v", result.Errors)
	}
}

func TestRunEnrichmentDataKey(t *testing.T) {
	repo := &fakeRepo{}
	scanners := []scanner.Scanner{
		&fakeScanner{name: "Arbitrage scanner", kind: scanner.KindArbitrage, records: []scanner.Record{arbRecord(90), arbRecord(40)}},
	}
	o := NewOrchestrator(repo, scanners, &fakeEnricher{configured: true, minConf: 70}, nil, time.Second, nil)

	result, err := o.Run(context.Background(), Request{ScanType: TypeArbitrage})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Opportunities) != 2 {
		t.Fatalf("expected 2 opportunities, got %d", len(result.Opportunities))
	}
	for _, opp := range result.Opportunities {
		data := map[string]any{}
		if len(opp.Data) > 0 {
			if err := json.Unmarshal(opp.Data, &data); err != nil {
				t.Fatalf("decode data: %v", err)
			}
		}
		_, enriched := data["aiAnalysis"]
		if opp.ConfidenceScore >= 70 && !enriched {
			t.Fatalf("high-confidence opportunity missing the aiAnalysis payload")
		}
		if opp.ConfidenceScore < 70 && enriched {
			t.Fatalf("low-confidence opportunity must not carry an aiAnalysis payload")
		}
	}
}

// barrierEnricher only proceeds promptly when every expected call is in
// flight at the same time; sequential enrichment shows up as a timeout.
type barrierEnricher struct {
	pending sync.WaitGroup

	mu       sync.Mutex
	timedOut bool
}

func (b *barrierEnricher) Configured() bool   { return true }
func (b *barrierEnricher) MinConfidence() int { return 70 }

func (b *barrierEnricher) Analyze(ctx context.Context, opp models.Opportunity) (*ai.Analysis, error) {
	released := make(chan struct{})
	go func() {
		b.pending.Done()
		b.pending.Wait()
		close(released)
	}()
	select {
	case <-released:
	case <-time.After(time.Second):
		b.mu.Lock()
		b.timedOut = true
		b.mu.Unlock()
	}
	return &ai.Analysis{Summary: "ok", RiskLevel: "low", Recommendation: "act"}, nil
}

func TestRunEnrichmentRunsConcurrently(t *testing.T) {
	enricher := &barrierEnricher{}
	enricher.pending.Add(2)
	scanners := []scanner.Scanner{
		&fakeScanner{name: "Arbitrage scanner", kind: scanner.KindArbitrage, records: []scanner.Record{arbRecord(90), arbRecord(85)}},
	}
	o := NewOrchestrator(&fakeRepo{}, scanners, enricher, nil, time.Second, nil)

	result, err := o.Run(context.Background(), Request{ScanType: TypeArbitrage})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if enricher.timedOut {
		t.Fatalf("expected both enrichment calls in flight together")
	}
	if result.AIAnalysisCount != 2 {
		t.Fatalf("expected 2 analyses, got %d", result.AIAnalysisCount)
	}
}

func TestRunPersistFailureVisibleAndSkipsAlerts(t *testing.T) {
	repo := &fakeRepo{insertErr: errors.New("db down")}
	alerter := &fakeAlerter{sent: 5}
	scanners := []scanner.Scanner{
		&fakeScanner{name: "Arbitrage scanner", kind: scanner.KindArbitrage, records: []scanner.Record{arbRecord(90)}},
	}
	o := NewOrchestrator(repo, scanners, nil, alerter, time.Second, nil)

	result, err := o.Run(context.Background(), Request{ScanType: TypeArbitrage})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "Failed to save opportunities") {
		t.Fatalf("expected a visible persistence error, got %v", result.Errors)
	}
	if alerter.calls != 0 {
		t.Fatalf("alerts must not fire for unsaved opportunities")
	}
	if result.AlertsSent != 0 {
		t.Fatalf("expected alertsSent 0, got %d", result.AlertsSent)
	}
}

func TestRunAlertsCounted(t *testing.T) {
	repo := &fakeRepo{}
	alerter := &fakeAlerter{sent: 3}
	scanners := []scanner.Scanner{
		&fakeScanner{name: "Arbitrage scanner", kind: scanner.KindArbitrage, records: []scanner.Record{arbRecord(90)}},
	}
	o := NewOrchestrator(repo, scanners, nil, alerter, time.Second, nil)

	result, err := o.Run(context.Background(), Request{ScanType: TypeArbitrage})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.AlertsSent != 3 {
		t.Fatalf("expected alertsSent 3, got %d", result.AlertsSent)
	}
}
