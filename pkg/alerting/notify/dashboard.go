package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/sentinelops/alerting-engine/pkg/alerting"
)

// NotificationRecord is the row the dashboard channel writes for UI consumption
type NotificationRecord struct {
	AlertID   string    `json:"alert_id"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationWriter persists dashboard notification rows
type NotificationWriter interface {
	SaveNotification(ctx context.Context, record NotificationRecord) error
}

// DashboardTransport delivers alerts to the dashboard by writing a
// notification row through the store
type DashboardTransport struct {
	writer NotificationWriter
}

// NewDashboardTransport creates the dashboard transport
func NewDashboardTransport(writer NotificationWriter) *DashboardTransport {
	return &DashboardTransport{writer: writer}
}

// Send writes the alert summary as a notification row
func (t *DashboardTransport) Send(ctx context.Context, summary alerting.AlertSummary) error {
	if t.writer == nil {
		return fmt.Errorf("dashboard notification writer is not configured")
	}
	record := NotificationRecord{
		AlertID:   summary.ID,
		Type:      string(summary.Type),
		Severity:  string(summary.Severity),
		Title:     summary.Title,
		Message:   summary.Message,
		CreatedAt: summary.CreatedAt,
	}
	if err := t.writer.SaveNotification(ctx, record); err != nil {
		return fmt.Errorf("save dashboard notification: %w", err)
	}
	return nil
}
