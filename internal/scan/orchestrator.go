package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"tradesmart/internal/ai"
	"tradesmart/internal/models"
	"tradesmart/internal/repository"
	"tradesmart/internal/scanner"
)

// Scan types accepted by the run endpoint. "betting" fans out to all three
// betting scanners; "all" runs everything.
const (
	TypeArbitrage      = "arbitrage"
	TypeValueBets      = "value_bets"
	TypeMatchedBetting = "matched_betting"
	TypeBetting        = "betting"
	TypeStocks         = "stocks"
	TypeCrypto         = "crypto"
	TypeAll            = "all"
)

// ErrInvalidScanType rejects unknown scan types before any quota is spent.
var ErrInvalidScanType = errors.New("invalid scan type")

// ErrFreeTier rejects scan runs from free-tier users.
var ErrFreeTier = errors.New("scanning requires a paid subscription")

// QuotaExceededError reports a daily quota hit with the numbers the caller
// needs to render the limit message.
type QuotaExceededError struct {
	Used  int
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily scan limit reached (%d/%d)", e.Used, e.Limit)
}

// Enricher is the AI surface the orchestrator needs; *ai.Client satisfies it.
type Enricher interface {
	Configured() bool
	MinConfidence() int
	Analyze(ctx context.Context, opp models.Opportunity) (*ai.Analysis, error)
}

// Alerter fans persisted opportunities out to subscribers; *alert.Dispatcher
// satisfies it.
type Alerter interface {
	SendBatch(ctx context.Context, opportunities []models.Opportunity) int
}

// Request is one scan run invocation.
type Request struct {
	ScanType string
	UserID   string
	UserTier string
}

// Result is the outcome of a completed run. Errors carries the per-scanner
// and persistence failures that are visible to the caller; enrichment and
// alert failures never appear here.
type Result struct {
	ScanType        string
	Opportunities   []models.Opportunity
	Errors          []string
	AIAnalysisCount int
	AlertsSent      int
}

// Orchestrator drives a scan run end to end: quota, scanner fan-out,
// normalization, enrichment, persistence and alerting.
type Orchestrator struct {
	repo     repository.Repository
	scanners []scanner.Scanner
	enricher Enricher
	alerter  Alerter
	timeout  time.Duration
	log      *zap.Logger
	now      func() time.Time
}

func NewOrchestrator(repo repository.Repository, scanners []scanner.Scanner, enricher Enricher, alerter Alerter, timeout time.Duration, log *zap.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		repo:     repo,
		scanners: scanners,
		enricher: enricher,
		alerter:  alerter,
		timeout:  timeout,
		log:      log,
		now:      time.Now,
	}
}

func validScanType(scanType string) bool {
	switch scanType {
	case TypeArbitrage, TypeValueBets, TypeMatchedBetting, TypeBetting, TypeStocks, TypeCrypto, TypeAll:
		return true
	}
	return false
}

// selected reports whether a scanner kind participates in a scan type.
func selected(scanType, kind string) bool {
	switch scanType {
	case TypeAll:
		return true
	case TypeBetting:
		return kind == scanner.KindArbitrage || kind == scanner.KindValueBet || kind == scanner.KindMatchedBetting
	default:
		return scanType == kind
	}
}

// Run executes one scan. Validation and quota failures return typed errors;
// everything past the quota gate degrades into Result.Errors instead of
// failing the run.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	scanType := req.ScanType
	if !validScanType(scanType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScanType, req.ScanType)
	}

	// Identified users always pass the quota gate; a missing tier claim gets
	// free-tier treatment. Anonymous runs carry no counter to spend against.
	if req.UserID != "" {
		if err := o.spendQuota(ctx, req.UserID, req.UserTier); err != nil {
			return nil, err
		}
	}

	result := &Result{ScanType: scanType}
	records := o.runScanners(ctx, scanType, result)

	now := o.now().UTC()
	var userID *string
	if req.UserID != "" {
		id := req.UserID
		userID = &id
	}
	opportunities := make([]models.Opportunity, 0, len(records))
	for _, record := range records {
		opportunities = append(opportunities, Normalize(record, userID, now))
	}

	result.AIAnalysisCount = o.enrich(ctx, opportunities)

	if len(opportunities) > 0 {
		if err := o.repo.InsertOpportunities(ctx, opportunities); err != nil {
			o.log.Error("persist opportunities failed", zap.Int("count", len(opportunities)), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to save opportunities: %v", err))
		} else if o.alerter != nil {
			result.AlertsSent = o.alerter.SendBatch(ctx, opportunities)
		}
	}

	result.Opportunities = opportunities
	return result, nil
}

func (o *Orchestrator) spendQuota(ctx context.Context, userID, tier string) error {
	limit := TierLimit(tier)
	if limit == Unlimited {
		return nil
	}
	if limit == 0 {
		return ErrFreeTier
	}
	used, allowed, err := o.repo.IncrementScanUsage(ctx, userID, models.UsageDay(o.now()), limit)
	if err != nil {
		return fmt.Errorf("check scan quota: %w", err)
	}
	if !allowed {
		return &QuotaExceededError{Used: used, Limit: limit}
	}
	return nil
}

// runScanners fans the selected scanners out in parallel. Each gets its own
// timeout; one scanner failing or timing out never touches the others.
func (o *Orchestrator) runScanners(ctx context.Context, scanType string, result *Result) []scanner.Record {
	type outcome struct {
		index   int
		records []scanner.Record
		failure string
	}

	active := make([]scanner.Scanner, 0, len(o.scanners))
	for _, s := range o.scanners {
		if selected(scanType, s.Kind()) {
			active = append(active, s)
		}
	}

	results := make(chan outcome, len(active))
	var wg sync.WaitGroup
	for i, s := range active {
		if err := s.Available(); err != nil {
			results <- outcome{index: i, failure: fmt.Sprintf("%s unavailable: %v", s.Name(), err)}
			continue
		}
		wg.Add(1)
		go func(index int, s scanner.Scanner) {
			defer wg.Done()
			scanCtx, cancel := context.WithTimeout(ctx, o.timeout)
			defer cancel()
			records, err := s.Scan(scanCtx)
			if err != nil {
				o.log.Warn("scanner failed", zap.String("scanner", s.Name()), zap.Error(err))
				results <- outcome{index: index, failure: fmt.Sprintf("%s failed: %v", s.Name(), err)}
				return
			}
			results <- outcome{index: index, records: records}
		}(i, s)
	}
	wg.Wait()
	close(results)

	collected := make([]outcome, 0, len(active))
	for out := range results {
		collected = append(collected, out)
	}
	// Deterministic ordering regardless of which scanner finished first.
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

	var records []scanner.Record
	for _, out := range collected {
		if out.failure != "" {
			result.Errors = append(result.Errors, out.failure)
			continue
		}
		records = append(records, out.records...)
	}
	return records
}

// enrich fans every qualifying opportunity out to the AI provider at once
// and attaches the analyses in place. Failures are logged and swallowed;
// enrichment never blocks a scan.
func (o *Orchestrator) enrich(ctx context.Context, opportunities []models.Opportunity) int {
	if o.enricher == nil || !o.enricher.Configured() {
		return 0
	}
	minConfidence := o.enricher.MinConfidence()
	var enriched atomic.Int64
	var wg sync.WaitGroup
	for i := range opportunities {
		if opportunities[i].ConfidenceScore < minConfidence {
			continue
		}
		wg.Add(1)
		go func(opp *models.Opportunity) {
			defer wg.Done()
			analysis, err := o.enricher.Analyze(ctx, *opp)
			if err != nil {
				o.log.Warn("ai analysis failed", zap.String("opportunity_id", opp.ID), zap.Error(err))
				return
			}
			attachAnalysis(opp, analysis)
			enriched.Add(1)
		}(&opportunities[i])
	}
	wg.Wait()
	return int(enriched.Load())
}

func attachAnalysis(opp *models.Opportunity, analysis *ai.Analysis) {
	data := map[string]any{}
	if len(opp.Data) > 0 {
		if err := json.Unmarshal(opp.Data, &data); err != nil {
			data = map[string]any{}
		}
	}
	data["aiAnalysis"] = analysis
	if encoded, err := json.Marshal(data); err == nil {
		opp.Data = datatypes.JSON(encoded)
	}
}
