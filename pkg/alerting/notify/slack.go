package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sentinelops/alerting-engine/pkg/alerting"
)

// SlackTransport delivers alert summaries to a Slack incoming webhook
type SlackTransport struct {
	webhookURL string
}

// NewSlackTransport creates the Slack transport
func NewSlackTransport(settings alerting.SlackSettings) *SlackTransport {
	return &SlackTransport{webhookURL: settings.WebhookURL}
}

type slackMessage struct {
	Text string `json:"text"`
}

// Send posts the summary to the configured incoming webhook
func (t *SlackTransport) Send(ctx context.Context, summary alerting.AlertSummary) error {
	if t.webhookURL == "" {
		return fmt.Errorf("slack transport is not configured")
	}

	payload, err := json.Marshal(slackMessage{Text: formatText(summary)})
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}
