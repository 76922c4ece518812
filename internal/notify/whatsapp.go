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

// WhatsAppSender delivers through the Meta graph messages API.
type WhatsAppSender struct {
	cfg        config.WhatsAppConfig
	httpClient *http.Client
}

func NewWhatsAppSender(cfg config.WhatsAppConfig, httpClient *http.Client) *WhatsAppSender {
	return &WhatsAppSender{cfg: cfg, httpClient: httpClient}
}

func (s *WhatsAppSender) Channel() string {
	return models.AlertChannelWhatsApp
}

type whatsappPayload struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsappText `json:"text"`
}

type whatsappText struct {
	Body string `json:"body"`
}

func (s *WhatsAppSender) Send(ctx context.Context, destination, subject, body string) error {
	if s.cfg.Token == "" || s.cfg.SenderID == "" {
		return fmt.Errorf("whatsapp sender not configured")
	}
	payload := whatsappPayload{
		MessagingProduct: "whatsapp",
		To:               destination,
		Type:             "text",
		Text:             whatsappText{Body: subject + "\n" + body},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/" + s.cfg.SenderID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(encoded)))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp send failed (%d): %s", resp.StatusCode, string(raw))
	}
	return nil
}
