package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tradesmart/internal/config"
	"tradesmart/internal/models"
)

// Analysis is the structured enrichment attached to a high-confidence
// opportunity.
type Analysis struct {
	Summary        string `json:"summary"`
	RiskLevel      string `json:"risk_level"`
	Recommendation string `json:"recommendation"`
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	cfg        config.AIConfig
	httpClient *http.Client
}

func NewClient(cfg config.AIConfig, httpClient *http.Client) *Client {
	return &Client{cfg: cfg, httpClient: httpClient}
}

// Configured reports whether enrichment can run at all.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.APIKey != ""
}

// MinConfidence is the score threshold below which opportunities are not
// worth an enrichment call.
func (c *Client) MinConfidence() int {
	if c == nil || c.cfg.MinConfidence <= 0 {
		return 70
	}
	return c.cfg.MinConfidence
}

const systemPrompt = "You are a trading risk analyst. Reply with a JSON object " +
	`containing "summary" (one sentence), "risk_level" (low, medium or high) ` +
	`and "recommendation" (one short actionable sentence).`

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Analyze asks the model for a risk read on one opportunity.
func (c *Client) Analyze(ctx context.Context, opp models.Opportunity) (*Analysis, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("ai client not configured")
	}

	prompt := fmt.Sprintf("Category: %s/%s\nTitle: %s\nDetails: %s\nConfidence: %d\nExpected value: %s %s",
		opp.Category, opp.Subcategory, opp.Title, opp.Description,
		opp.ConfidenceScore, opp.ExpectedValue.String(), opp.ExpectedValueUnit)

	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    0.2,
		ResponseFormat: &respFormat{Type: "json_object"},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(encoded)))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("completion failed (%d): %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("empty completion")
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &analysis); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return &analysis, nil
}
