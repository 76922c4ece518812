package funding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client reads perpetual funding rates from a Binance futures compatible
// premium index endpoint. No key is needed; the endpoint is public.
type Client struct {
	host       string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

func NewClient(host string, httpClient *http.Client) *Client {
	host = strings.TrimRight(host, "/")
	if host == "" {
		host = "https://fapi.binance.com"
	}
	return &Client{host: host, httpClient: httpClient}
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// PremiumIndex is the funding state of one perpetual contract.
type PremiumIndex struct {
	Symbol          string
	MarkPrice       float64
	LastFundingRate float64
	NextFundingTime time.Time
}

type rawPremiumIndex struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
}

func (r rawPremiumIndex) parse() (PremiumIndex, error) {
	mark, err := strconv.ParseFloat(r.MarkPrice, 64)
	if err != nil {
		return PremiumIndex{}, fmt.Errorf("parse markPrice for %s: %w", r.Symbol, err)
	}
	fundingRate, err := strconv.ParseFloat(r.LastFundingRate, 64)
	if err != nil {
		return PremiumIndex{}, fmt.Errorf("parse lastFundingRate for %s: %w", r.Symbol, err)
	}
	return PremiumIndex{
		Symbol:          r.Symbol,
		MarkPrice:       mark,
		LastFundingRate: fundingRate,
		NextFundingTime: time.UnixMilli(r.NextFundingTime).UTC(),
	}, nil
}

// GetPremiumIndex fetches the funding state for one symbol.
func (c *Client) GetPremiumIndex(ctx context.Context, symbol string) (PremiumIndex, error) {
	if symbol == "" {
		return PremiumIndex{}, fmt.Errorf("symbol is required")
	}
	query := url.Values{}
	query.Set("symbol", symbol)
	body, err := c.doRequest(ctx, "/fapi/v1/premiumIndex", query)
	if err != nil {
		return PremiumIndex{}, err
	}
	var raw rawPremiumIndex
	if err := json.Unmarshal(body, &raw); err != nil {
		return PremiumIndex{}, fmt.Errorf("failed to parse premium index: %w", err)
	}
	return raw.parse()
}
