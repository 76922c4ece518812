package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"tradesmart/internal/models"
	"tradesmart/internal/repository"
	"tradesmart/internal/scan"
	"tradesmart/internal/scanner"
)

type stubRepo struct {
	repository.Repository

	usageUsed  int
	usageAllow bool
	insertErr  error
}

func (f *stubRepo) InsertOpportunities(ctx context.Context, items []models.Opportunity) error {
	return f.insertErr
}

func (f *stubRepo) IncrementScanUsage(ctx context.Context, userID, day string, limit int) (int, bool, error) {
	return f.usageUsed, f.usageAllow, nil
}

type stubScanner struct {
	kind        string
	name        string
	records     []scanner.Record
	unavailable error
}

func (s *stubScanner) Name() string     { return s.name }
func (s *stubScanner) Kind() string     { return s.kind }
func (s *stubScanner) Available() error { return s.unavailable }

func (s *stubScanner) Scan(ctx context.Context) ([]scanner.Record, error) {
	return s.records, nil
}

func newTestRouter(repo repository.Repository, scanners []scanner.Scanner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	orchestrator := scan.NewOrchestrator(repo, scanners, nil, nil, time.Second, nil)
	h := &ScannerHandler{Orchestrator: orchestrator}
	h.Register(engine)
	return engine
}

func postScan(t *testing.T, router *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/scanner/run", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestRunEndpointInvalidScanType(t *testing.T) {
	router := newTestRouter(&stubRepo{}, nil)

	for _, body := range []string{`{}`, `{"scanType":"forex"}`, `not json`} {
		rec := postScan(t, router, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
		var resp map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid error body: %v", err)
		}
		msg, _ := resp["error"].(string)
		if !strings.Contains(msg, "arbitrage, value_bets, matched_betting, betting, stocks, crypto, all") {
			t.Fatalf("error should list valid scan types, got %q", msg)
		}
	}
}

func TestRunEndpointFreeTier(t *testing.T) {
	router := newTestRouter(&stubRepo{}, nil)
	rec := postScan(t, router, `{"scanType":"all","userId":"u1","userTier":"free"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["code"] != "TIER_LIMIT_FREE" {
		t.Fatalf("expected TIER_LIMIT_FREE, got %v", resp["code"])
	}

	// An identified user without a tier claim gets the same treatment.
	rec = postScan(t, router, `{"scanType":"all","userId":"u2"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for missing tier, got %d", rec.Code)
	}
}

func TestRunEndpointQuotaReached(t *testing.T) {
	router := newTestRouter(&stubRepo{usageUsed: 100, usageAllow: false}, nil)
	rec := postScan(t, router, `{"scanType":"all","userId":"u1","userTier":"starter"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["code"] != "TIER_LIMIT_REACHED" {
		t.Fatalf("expected TIER_LIMIT_REACHED, got %v", resp["code"])
	}
	if resp["used"] != float64(100) || resp["limit"] != float64(100) {
		t.Fatalf("expected used/limit 100/100, got %v/%v", resp["used"], resp["limit"])
	}
}

func TestRunEndpointSuccessShape(t *testing.T) {
	eventTime := time.Now().Add(24 * time.Hour)
	scanners := []scanner.Scanner{
		&stubScanner{kind: scanner.KindArbitrage, name: "Arbitrage scanner", records: []scanner.Record{{
			Kind:       scanner.KindArbitrage,
			Title:      "surebet",
			Confidence: 85,
			Expected:   4.2,
			EventTime:  &eventTime,
		}}},
		&stubScanner{kind: scanner.KindStock, name: "Stocks scanner", unavailable: errNoKey("MARKET_DATA_API_KEY not configured")},
	}
	router := newTestRouter(&stubRepo{usageAllow: true, usageUsed: 1}, scanners)

	rec := postScan(t, router, `{"scanType":"all","userId":"u1","userTier":"pro"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp runResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success true")
	}
	if resp.ScanType != "all" {
		t.Fatalf("expected scanType all, got %s", resp.ScanType)
	}
	if resp.Count != 1 || len(resp.Opportunities) != 1 {
		t.Fatalf("expected 1 opportunity, got count=%d len=%d", resp.Count, len(resp.Opportunities))
	}
	if resp.Opportunities[0].Category != models.CategoryArbitrage {
		t.Fatalf("expected arbitrage category, got %s", resp.Opportunities[0].Category)
	}
	if resp.Opportunities[0].Status != models.StatusOpen {
		t.Fatalf("expected open status, got %s", resp.Opportunities[0].Status)
	}
	if len(resp.Errors) != 1 || !strings.Contains(resp.Errors[0], "Stocks scanner unavailable") {
		t.Fatalf("expected the stocks availability error, got %v", resp.Errors)
	}
	if resp.Message != "Scan completed with errors" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
	if _, err := time.Parse(time.RFC3339, resp.Timestamp); err != nil {
		t.Fatalf("timestamp not RFC3339: %v", err)
	}
}

func TestRunEndpointAnonymousScan(t *testing.T) {
	router := newTestRouter(&stubRepo{}, []scanner.Scanner{
		&stubScanner{kind: scanner.KindArbitrage, name: "Arbitrage scanner", unavailable: errNoKey("ODDS_API_KEY not configured")},
	})
	rec := postScan(t, router, `{"scanType":"arbitrage"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp runResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Count != 0 {
		t.Fatalf("expected count 0, got %d", resp.Count)
	}
	if len(resp.Errors) != 1 || resp.Errors[0] != "Arbitrage scanner unavailable: ODDS_API_KEY not configured" {
		t.Fatalf("unexpected errors: %v", resp.Errors)
	}
}

type errNoKey string

func (e errNoKey) Error() string { return string(e) }
