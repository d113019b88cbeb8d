package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// WebhookNotifier POSTs alerts as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier for url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type webhookPayload struct {
	Level       string  `json:"level"`
	Title       string  `json:"title"`
	Message     string  `json:"message"`
	AlertID     string  `json:"alertId"`
	Symbol      string  `json:"symbol"`
	Market      string  `json:"market"`
	Price       float64 `json:"price"`
	TriggeredAt string  `json:"triggeredAt"`
	TS          string  `json:"ts"`
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookPayload{
		Level:       string(alert.Level),
		Title:       alert.Title,
		Message:     alert.Message,
		AlertID:     alert.Entry.AlertID,
		Symbol:      alert.Entry.Symbol,
		Market:      alert.Entry.Market,
		Price:       alert.Entry.Price,
		TriggeredAt: alert.Entry.TriggeredAt.UTC().Format(time.RFC3339),
		TS:          time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}

	log.Printf("[webhook] sent alert to %s: %s", w.url, alert.Title)
	return nil
}
