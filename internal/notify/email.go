package notify

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

// EmailSender delivers through a Resend-compatible transactional email API.
type EmailSender struct {
	cfg        config.EmailConfig
	httpClient *http.Client
}

func NewEmailSender(cfg config.EmailConfig, httpClient *http.Client) *EmailSender {
	return &EmailSender{cfg: cfg, httpClient: httpClient}
}

func (s *EmailSender) Channel() string {
	return models.AlertChannelEmail
}

type emailPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

func (s *EmailSender) Send(ctx context.Context, destination, subject, body string) error {
	if s.cfg.APIKey == "" {
		return fmt.Errorf("email sender not configured")
	}
	payload := emailPayload{
		From:    s.cfg.From,
		To:      []string{destination},
		Subject: subject,
		Text:    body,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}

	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/emails"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(encoded)))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("email send failed (%d): %s", resp.StatusCode, string(raw))
	}
	return nil
}
