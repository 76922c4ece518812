package platform

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradesmart/internal/config"
)

type ibkrClient struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient httpDoer

	mu        sync.Mutex
	accountID string
}

func newIBKRClient(cfg config.IBKRConfig, creds Credentials, httpClient httpDoer) *ibkrClient {
	return &ibkrClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     creds.APIKey,
		apiSecret:  creds.APISecret,
		httpClient: httpClient,
	}
}

func (c *ibkrClient) Name() string {
	return IBKR
}

func (c *ibkrClient) ValidateCredentials(ctx context.Context) bool {
	return validateByBalance(ctx, c)
}

// sign computes the gateway's request signature:
// HMAC-SHA256(secret, timestamp + method + path + body), hex encoded.
func (c *ibkrClient) sign(timestamp, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *ibkrClient) get(ctx context.Context, op, path string, out any) error {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return newError(IBKR, op, KindUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", c.sign(timestamp, http.MethodGet, path, ""))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newError(IBKR, op, KindUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return newError(IBKR, op, KindUnavailable, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return newError(IBKR, op, KindAuthentication, fmt.Errorf("status %d: %s", resp.StatusCode, string(raw)))
	case resp.StatusCode == http.StatusTooManyRequests:
		return newError(IBKR, op, KindRateLimited, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return newError(IBKR, op, KindUnavailable, fmt.Errorf("status %d: %s", resp.StatusCode, string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return newError(IBKR, op, KindUnavailable, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// account resolves and caches the first account ID on the key. Every data
// endpoint is scoped by account, so this runs lazily before the first call.
func (c *ibkrClient) account(ctx context.Context, op string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accountID != "" {
		return c.accountID, nil
	}
	var accounts []struct {
		ID string `json:"id"`
	}
	if err := c.get(ctx, op, "/v1/accounts", &accounts); err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		return "", newError(IBKR, op, KindAuthentication, fmt.Errorf("key has no accounts"))
	}
	c.accountID = accounts[0].ID
	return c.accountID, nil
}

type ibkrSummary struct {
	Currency       string          `json:"currency"`
	AvailableFunds decimal.Decimal `json:"availableFunds"`
	GrossPosition  decimal.Decimal `json:"grossPositionValue"`
	NetLiquidation decimal.Decimal `json:"netLiquidation"`
}

func (c *ibkrClient) GetBalance(ctx context.Context) (Balance, error) {
	accountID, err := c.account(ctx, "get_balance")
	if err != nil {
		return Balance{}, err
	}
	var summary ibkrSummary
	if err := c.get(ctx, "get_balance", "/v1/accounts/"+accountID+"/summary", &summary); err != nil {
		return Balance{}, err
	}
	currency := summary.Currency
	if currency == "" {
		currency = "USD"
	}
	return Balance{
		Currency:  currency,
		Available: summary.AvailableFunds,
		Exposure:  summary.GrossPosition,
		Total:     summary.NetLiquidation,
	}, nil
}

type ibkrPosition struct {
	Symbol       string          `json:"symbol"`
	Position     decimal.Decimal `json:"position"`
	AvgCost      decimal.Decimal `json:"avgCost"`
	UnrealizedPL decimal.Decimal `json:"unrealizedPnl"`
}

func (c *ibkrClient) GetPositions(ctx context.Context) ([]Position, error) {
	accountID, err := c.account(ctx, "get_positions")
	if err != nil {
		return nil, err
	}
	var raw []ibkrPosition
	if err := c.get(ctx, "get_positions", "/v1/accounts/"+accountID+"/positions", &raw); err != nil {
		return nil, err
	}
	positions := make([]Position, 0, len(raw))
	for _, p := range raw {
		side := "long"
		size := p.Position
		if size.IsNegative() {
			side = "short"
			size = size.Abs()
		}
		positions = append(positions, Position{
			Market:       p.Symbol,
			Side:         side,
			Size:         size,
			AvgPrice:     p.AvgCost,
			UnrealizedPL: p.UnrealizedPL,
		})
	}
	return positions, nil
}

type ibkrTrade struct {
	ExecutionID string          `json:"executionId"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Commission  decimal.Decimal `json:"commission"`
	RealizedPL  decimal.Decimal `json:"realizedPnl"`
	Time        int64           `json:"time"`
}

func (c *ibkrClient) GetTrades(ctx context.Context, since time.Time) ([]Trade, error) {
	accountID, err := c.account(ctx, "get_trades")
	if err != nil {
		return nil, err
	}
	if since.IsZero() {
		since = time.Now().Add(-DefaultTradeLookback)
	}
	path := "/v1/accounts/" + accountID + "/trades?since=" + strconv.FormatInt(since.Unix(), 10)
	var raw []ibkrTrade
	if err := c.get(ctx, "get_trades", path, &raw); err != nil {
		return nil, err
	}
	trades := make([]Trade, 0, len(raw))
	for _, t := range raw {
		trades = append(trades, Trade{
			ExternalID: t.ExecutionID,
			Market:     t.Symbol,
			Side:       strings.ToLower(t.Side),
			Size:       t.Quantity,
			Price:      t.Price,
			Fee:        t.Commission,
			ProfitLoss: t.RealizedPL,
			ExecutedAt: time.Unix(t.Time, 0).UTC(),
		})
	}
	return trades, nil
}
