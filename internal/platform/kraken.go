package platform

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradesmart/internal/config"
)

// fiat currency codes Kraken reports balances in. Crypto asset balances are
// skipped so the portfolio snapshot stays in account currency terms.
var krakenFiat = map[string]string{
	"ZUSD": "USD", "ZEUR": "EUR", "ZGBP": "GBP", "ZCAD": "CAD", "ZAUD": "AUD",
	"USD": "USD", "EUR": "EUR", "GBP": "GBP", "CAD": "CAD", "AUD": "AUD",
}

// nonceSource hands out strictly increasing nonces. Kraken rejects any
// private call whose nonce is not greater than the last one it saw for the
// key, so concurrent requests must serialize here.
type nonceSource struct {
	mu   sync.Mutex
	last int64
}

func (n *nonceSource) next() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	nonce := time.Now().UnixMicro()
	if nonce <= n.last {
		nonce = n.last + 1
	}
	n.last = nonce
	return nonce
}

type krakenClient struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient httpDoer
	nonces     *nonceSource
	log        *zap.Logger
}

func newKrakenClient(cfg config.KrakenConfig, creds Credentials, httpClient httpDoer, log *zap.Logger) *krakenClient {
	return &krakenClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     creds.APIKey,
		apiSecret:  creds.APISecret,
		httpClient: httpClient,
		nonces:     &nonceSource{},
		log:        log,
	}
}

func (c *krakenClient) Name() string {
	return Kraken
}

func (c *krakenClient) ValidateCredentials(ctx context.Context) bool {
	return validateByBalance(ctx, c)
}

// sign computes the API-Sign header: HMAC-SHA512 over path plus
// SHA256(nonce + postdata), keyed with the base64-decoded secret.
func (c *krakenClient) sign(path, nonce, postdata string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(c.apiSecret)
	if err != nil {
		return "", fmt.Errorf("decode api secret: %w", err)
	}
	digest := sha256.Sum256([]byte(nonce + postdata))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(digest[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

type krakenResponse struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (c *krakenClient) private(ctx context.Context, op, path string, form url.Values) (json.RawMessage, error) {
	if form == nil {
		form = url.Values{}
	}
	nonce := strconv.FormatInt(c.nonces.next(), 10)
	form.Set("nonce", nonce)
	postdata := form.Encode()

	signature, err := c.sign(path, nonce, postdata)
	if err != nil {
		return nil, newError(Kraken, op, KindAuthentication, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(postdata))
	if err != nil {
		return nil, newError(Kraken, op, KindUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("API-Key", c.apiKey)
	req.Header.Set("API-Sign", signature)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newError(Kraken, op, KindUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(Kraken, op, KindUnavailable, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, newError(Kraken, op, KindRateLimited, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newError(Kraken, op, KindUnavailable, fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var parsed krakenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, newError(Kraken, op, KindUnavailable, fmt.Errorf("decode response: %w", err))
	}
	if len(parsed.Error) > 0 {
		return nil, newError(Kraken, op, classifyKrakenError(parsed.Error), fmt.Errorf("%s", strings.Join(parsed.Error, "; ")))
	}
	return parsed.Result, nil
}

func classifyKrakenError(errs []string) Kind {
	for _, e := range errs {
		switch {
		case strings.Contains(e, "Invalid key"),
			strings.Contains(e, "Invalid signature"),
			strings.Contains(e, "Invalid nonce"),
			strings.Contains(e, "Permission denied"):
			return KindAuthentication
		case strings.Contains(e, "Rate limit"),
			strings.Contains(e, "Too many requests"):
			return KindRateLimited
		}
	}
	return KindUnavailable
}

func (c *krakenClient) GetBalance(ctx context.Context) (Balance, error) {
	result, err := c.private(ctx, "get_balance", "/0/private/Balance", nil)
	if err != nil {
		return Balance{}, err
	}
	var raw map[string]string
	if err := json.Unmarshal(result, &raw); err != nil {
		return Balance{}, newError(Kraken, "get_balance", KindUnavailable, fmt.Errorf("decode balances: %w", err))
	}

	// Fiat balances are summed across currencies; the label follows the
	// largest one. No FX conversion is attempted.
	balance := Balance{Currency: "USD"}
	total := decimal.Zero
	top := decimal.Zero
	found := false
	for asset, amount := range raw {
		currency, ok := krakenFiat[asset]
		if !ok {
			if c.log != nil {
				c.log.Debug("skipping non-fiat kraken balance", zap.String("asset", asset))
			}
			continue
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return Balance{}, newError(Kraken, "get_balance", KindUnavailable, fmt.Errorf("parse %s balance: %w", asset, err))
		}
		total = total.Add(value)
		if !found || value.GreaterThan(top) {
			balance.Currency = currency
			top = value
			found = true
		}
	}
	// Spot keys expose no margin exposure.
	balance.Available = total
	balance.Exposure = decimal.Zero
	balance.Total = total
	return balance, nil
}

type krakenPositionEntry struct {
	Pair string          `json:"pair"`
	Type string          `json:"type"`
	Vol  decimal.Decimal `json:"vol"`
	Cost decimal.Decimal `json:"cost"`
	Net  decimal.Decimal `json:"net"`
}

func (c *krakenClient) GetPositions(ctx context.Context) ([]Position, error) {
	result, err := c.private(ctx, "get_positions", "/0/private/OpenPositions", nil)
	if err != nil {
		// Keys without margin access get rejected at this endpoint. That is
		// a capability gap on the account, not a credential problem.
		var pe *Error
		if errors.As(err, &pe) && pe.Err != nil {
			msg := pe.Err.Error()
			if strings.Contains(msg, "Permission denied") ||
				strings.Contains(msg, "Feature disabled") ||
				strings.Contains(msg, "Margin") {
				return nil, newError(Kraken, "get_positions", KindUnsupported, pe.Err)
			}
		}
		return nil, err
	}
	var raw map[string]krakenPositionEntry
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, newError(Kraken, "get_positions", KindUnavailable, fmt.Errorf("decode positions: %w", err))
	}
	positions := make([]Position, 0, len(raw))
	for _, p := range raw {
		side := "long"
		if p.Type == "sell" {
			side = "short"
		}
		avg := decimal.Zero
		if !p.Vol.IsZero() {
			avg = p.Cost.Div(p.Vol)
		}
		positions = append(positions, Position{
			Market:       p.Pair,
			Side:         side,
			Size:         p.Vol,
			AvgPrice:     avg,
			UnrealizedPL: p.Net,
		})
	}
	return positions, nil
}

type krakenTradesResult struct {
	Trades map[string]krakenTrade `json:"trades"`
}

type krakenTrade struct {
	Pair  string          `json:"pair"`
	Type  string          `json:"type"`
	Price decimal.Decimal `json:"price"`
	Fee   decimal.Decimal `json:"fee"`
	Vol   decimal.Decimal `json:"vol"`
	Time  float64         `json:"time"`
}

func (c *krakenClient) GetTrades(ctx context.Context, since time.Time) ([]Trade, error) {
	form := url.Values{}
	if !since.IsZero() {
		form.Set("start", strconv.FormatInt(since.Unix(), 10))
	}
	result, err := c.private(ctx, "get_trades", "/0/private/TradesHistory", form)
	if err != nil {
		return nil, err
	}
	var parsed krakenTradesResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, newError(Kraken, "get_trades", KindUnavailable, fmt.Errorf("decode trades: %w", err))
	}

	trades := make([]Trade, 0, len(parsed.Trades))
	for id, t := range parsed.Trades {
		sec, frac := int64(t.Time), t.Time-float64(int64(t.Time))
		trades = append(trades, Trade{
			ExternalID: id,
			Market:     t.Pair,
			Side:       t.Type,
			Size:       t.Vol,
			Price:      t.Price,
			Fee:        t.Fee,
			ExecutedAt: time.Unix(sec, int64(frac*1e9)).UTC(),
		})
	}
	return trades, nil
}
