package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradesmart/internal/config"
)

type betfairClient struct {
	baseURL     string
	appKey      string
	accessToken string
	httpClient  httpDoer
}

func newBetfairClient(cfg config.BetfairConfig, creds Credentials, httpClient httpDoer) *betfairClient {
	return &betfairClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		appKey:      cfg.AppKey,
		accessToken: creds.AccessToken,
		httpClient:  httpClient,
	}
}

func (c *betfairClient) Name() string {
	return Betfair
}

func (c *betfairClient) ValidateCredentials(ctx context.Context) bool {
	return validateByBalance(ctx, c)
}

func (c *betfairClient) post(ctx context.Context, op, path string, payload, out any) error {
	var body io.Reader = strings.NewReader("{}")
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return newError(Betfair, op, KindUnavailable, fmt.Errorf("encode request: %w", err))
		}
		body = strings.NewReader(string(encoded))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return newError(Betfair, op, KindUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Application", c.appKey)
	req.Header.Set("X-Authentication", c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newError(Betfair, op, KindUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return newError(Betfair, op, KindUnavailable, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return newError(Betfair, op, KindAuthentication, fmt.Errorf("status %d: %s", resp.StatusCode, string(raw)))
	case resp.StatusCode == http.StatusTooManyRequests:
		return newError(Betfair, op, KindRateLimited, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return newError(Betfair, op, KindUnavailable, fmt.Errorf("status %d: %s", resp.StatusCode, string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return newError(Betfair, op, KindUnavailable, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

type betfairFunds struct {
	AvailableToBetBalance decimal.Decimal `json:"availableToBetBalance"`
	Exposure              decimal.Decimal `json:"exposure"`
}

func (c *betfairClient) GetBalance(ctx context.Context) (Balance, error) {
	var funds betfairFunds
	if err := c.post(ctx, "get_balance", "/account/rest/v1.0/getAccountFunds/", nil, &funds); err != nil {
		return Balance{}, err
	}
	// Betfair reports exposure as a negative number.
	exposure := funds.Exposure.Abs()
	return Balance{
		Currency:  "GBP",
		Available: funds.AvailableToBetBalance,
		Exposure:  exposure,
		Total:     funds.AvailableToBetBalance.Add(exposure),
	}, nil
}

type betfairCurrentOrders struct {
	CurrentOrders []struct {
		MarketID        string          `json:"marketId"`
		Side            string          `json:"side"`
		SizeMatched     decimal.Decimal `json:"sizeMatched"`
		AveragePrice    decimal.Decimal `json:"averagePriceMatched"`
		SizeRemaining   decimal.Decimal `json:"sizeRemaining"`
		PriceSizePlaced struct {
			Price decimal.Decimal `json:"price"`
		} `json:"priceSize"`
	} `json:"currentOrders"`
}

func (c *betfairClient) GetPositions(ctx context.Context) ([]Position, error) {
	var parsed betfairCurrentOrders
	payload := map[string]any{"orderProjection": "ALL"}
	if err := c.post(ctx, "get_positions", "/betting/rest/v1.0/listCurrentOrders/", payload, &parsed); err != nil {
		return nil, err
	}
	positions := make([]Position, 0, len(parsed.CurrentOrders))
	for _, order := range parsed.CurrentOrders {
		size := order.SizeMatched
		price := order.AveragePrice
		if size.IsZero() {
			size = order.SizeRemaining
			price = order.PriceSizePlaced.Price
		}
		positions = append(positions, Position{
			Market:   order.MarketID,
			Side:     strings.ToLower(order.Side),
			Size:     size,
			AvgPrice: price,
		})
	}
	return positions, nil
}

type betfairClearedOrders struct {
	ClearedOrders []struct {
		BetID        string          `json:"betId"`
		MarketID     string          `json:"marketId"`
		Side         string          `json:"side"`
		SizeSettled  decimal.Decimal `json:"sizeSettled"`
		PriceMatched decimal.Decimal `json:"priceMatched"`
		Commission   decimal.Decimal `json:"commission"`
		Profit       decimal.Decimal `json:"profit"`
		SettledDate  string          `json:"settledDate"`
	} `json:"clearedOrders"`
}

func (c *betfairClient) GetTrades(ctx context.Context, since time.Time) ([]Trade, error) {
	if since.IsZero() {
		since = time.Now().Add(-DefaultTradeLookback)
	}
	payload := map[string]any{
		"betStatus": "SETTLED",
		"settledDateRange": map[string]string{
			"from": since.UTC().Format(time.RFC3339),
		},
	}
	var parsed betfairClearedOrders
	if err := c.post(ctx, "get_trades", "/betting/rest/v1.0/listClearedOrders/", payload, &parsed); err != nil {
		return nil, err
	}
	trades := make([]Trade, 0, len(parsed.ClearedOrders))
	for _, order := range parsed.ClearedOrders {
		executedAt := time.Time{}
		if order.SettledDate != "" {
			if parsedAt, err := time.Parse(time.RFC3339, order.SettledDate); err == nil {
				executedAt = parsedAt.UTC()
			}
		}
		trades = append(trades, Trade{
			ExternalID: order.BetID,
			Market:     order.MarketID,
			Side:       strings.ToLower(order.Side),
			Size:       order.SizeSettled,
			Price:      order.PriceMatched,
			Fee:        order.Commission,
			ProfitLoss: order.Profit,
			ExecutedAt: executedAt,
		})
	}
	return trades, nil
}

// Token holds the OAuth2 grant material Betfair hands back.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type betfairTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error"`
}

func betfairTokenRequest(ctx context.Context, httpClient *http.Client, cfg config.BetfairConfig, form url.Values) (Token, error) {
	endpoint := strings.TrimRight(cfg.AuthURL, "/") + "/api/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, newError(Betfair, "token", KindUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(cfg.ClientID, cfg.ClientSecret)

	resp, err := httpClient.Do(req)
	if err != nil {
		return Token{}, newError(Betfair, "token", KindUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, newError(Betfair, "token", KindUnavailable, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		return Token{}, newError(Betfair, "token", KindAuthentication, fmt.Errorf("status %d: %s", resp.StatusCode, string(raw)))
	}
	if resp.StatusCode != http.StatusOK {
		return Token{}, newError(Betfair, "token", KindUnavailable, fmt.Errorf("status %d: %s", resp.StatusCode, string(raw)))
	}

	var parsed betfairTokenResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Token{}, newError(Betfair, "token", KindUnavailable, fmt.Errorf("decode token: %w", err))
	}
	if parsed.Error != "" || parsed.AccessToken == "" {
		return Token{}, newError(Betfair, "token", KindAuthentication, fmt.Errorf("token exchange rejected: %s", parsed.Error))
	}
	return Token{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second).UTC(),
	}, nil
}

// ExchangeAuthCode trades an OAuth2 authorization code for a token pair.
func ExchangeAuthCode(ctx context.Context, httpClient *http.Client, cfg config.BetfairConfig, code string) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", cfg.ClientID)
	return betfairTokenRequest(ctx, httpClient, cfg, form)
}

// RefreshAccessToken rotates an expired access token using the refresh token.
func RefreshAccessToken(ctx context.Context, httpClient *http.Client, cfg config.BetfairConfig, refreshToken string) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", cfg.ClientID)
	return betfairTokenRequest(ctx, httpClient, cfg, form)
}
