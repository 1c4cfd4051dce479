package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sentinelops/alerting-engine/pkg/alerting"
)

// WebhookTransport POSTs the full alert summary as JSON to a configured URL
type WebhookTransport struct {
	url string
}

// NewWebhookTransport creates the generic webhook transport
func NewWebhookTransport(settings alerting.WebhookSettings) *WebhookTransport {
	return &WebhookTransport{url: settings.URL}
}

// Send posts the summary to the configured endpoint; any 2xx status counts as
// delivered
func (t *WebhookTransport) Send(ctx context.Context, summary alerting.AlertSummary) error {
	if t.url == "" {
		return fmt.Errorf("webhook transport is not configured")
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
