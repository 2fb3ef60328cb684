package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/amirlehmam/flashloan/internal/market"
)

// WebhookSink POSTs signals to a chat webhook as a Slack-style
// {"text": ...} payload.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink builds a webhook sink against the given URL.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{url: url, client: &http.Client{}}
}

// Name identifies the sink in metrics and logs.
func (*WebhookSink) Name() string { return "webhook" }

type webhookPayload struct {
	Text string `json:"text"`
}

// Deliver posts the rendered alert message; non-2xx responses are
// delivery failures.
func (w *WebhookSink) Deliver(ctx context.Context, sig market.Signal) error {
	body, err := json.Marshal(webhookPayload{Text: FormatMessage(sig)})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
