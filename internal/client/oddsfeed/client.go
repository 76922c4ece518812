package oddsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"tradesmart/internal/config"
)

// Client pulls bookmaker odds from an Odds-API compatible feed. Calls are
// rate limited client-side and fronted by a circuit breaker so a dead feed
// fails fast instead of burning the scanner timeout on every request.
type Client struct {
	host       string
	apiKey     string
	regions    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

func NewClient(cfg config.OddsFeedConfig, httpClient *http.Client) *Client {
	host := strings.TrimRight(cfg.BaseURL, "/")
	if host == "" {
		host = "https://api.the-odds-api.com"
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 5
	}
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "oddsfeed",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		host:       host,
		apiKey:     cfg.APIKey,
		regions:    cfg.Regions,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(limit), 1),
		breaker:    breaker,
	}
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.breaker.Execute(func() ([]byte, error) {
		if query == nil {
			query = url.Values{}
		}
		query.Set("apiKey", c.apiKey)
		fullURL := c.host + path + "?" + query.Encode()
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
	})
}

// Outcome is one side of a bookmaker's market with its decimal odds.
type Outcome struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type Market struct {
	Key      string    `json:"key"`
	Outcomes []Outcome `json:"outcomes"`
}

type Bookmaker struct {
	Key     string   `json:"key"`
	Title   string   `json:"title"`
	Markets []Market `json:"markets"`
}

// Event is one upcoming fixture with odds across bookmakers.
type Event struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	SportTitle   string      `json:"sport_title"`
	CommenceTime time.Time   `json:"commence_time"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	Bookmakers   []Bookmaker `json:"bookmakers"`
}

// GetOdds fetches head-to-head odds for every upcoming event in a sport.
func (c *Client) GetOdds(ctx context.Context, sport string) ([]Event, error) {
	if sport == "" {
		return nil, fmt.Errorf("sport is required")
	}
	query := url.Values{}
	query.Set("regions", c.regions)
	query.Set("markets", "h2h")
	query.Set("oddsFormat", "decimal")
	body, err := c.doRequest(ctx, "/v4/sports/"+sport+"/odds", query)
	if err != nil {
		return nil, err
	}
	var events []Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("failed to parse odds: %w", err)
	}
	return events, nil
}
