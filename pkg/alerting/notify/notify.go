// Package notify contains the concrete notification transports used by the
// alerting engine: dashboard (store-backed), email (SMTP), Slack incoming
// webhook, Telegram bot, and generic HTTP webhook.
package notify

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sentinelops/alerting-engine/pkg/alerting"
)

// httpClient is shared by the webhook-style transports. Per-send deadlines
// come from the context; this timeout is a hard backstop.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// formatText renders the plain-text body shared by the chat transports
func formatText(summary alerting.AlertSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", strings.ToUpper(string(summary.Severity)), summary.Title)
	fmt.Fprintf(&b, "%s\n", summary.Message)
	if summary.Metric != "" {
		fmt.Fprintf(&b, "Metric: %s\n", summary.Metric)
	}
	fmt.Fprintf(&b, "Time: %s", summary.CreatedAt.Format(time.RFC3339))
	return b.String()
}
