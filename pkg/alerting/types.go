// Package alerting implements the intelligent alerting engine: periodic metric
// sampling, threshold and statistical anomaly detection, deduplication, rate
// limiting, severity-based notification routing, and alert lifecycle management.
package alerting

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AlertType classifies the origin of an alert
type AlertType string

const (
	AlertTypePerformance AlertType = "performance"
	AlertTypeBusiness    AlertType = "business"
	AlertTypeSecurity    AlertType = "security"
	AlertTypeAnomaly     AlertType = "anomaly"
	AlertTypeForecast    AlertType = "forecast"
	AlertTypeWorkflow    AlertType = "workflow"
)

// AlertSeverity is the ordinal classification driving notification routing
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// Rank returns the ordinal position of the severity (low < medium < high < critical)
func (s AlertSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Alert is a single notification-worthy event produced by the pipeline
type Alert struct {
	ID       string        `json:"id"`
	Type     AlertType     `json:"type"`
	Severity AlertSeverity `json:"severity"`

	Title   string `json:"title"`
	Message string `json:"message"`
	Source  string `json:"source"`
	Metric  string `json:"metric,omitempty"`

	CurrentValue   float64 `json:"current_value,omitempty"`
	ExpectedValue  float64 `json:"expected_value,omitempty"`
	ThresholdValue float64 `json:"threshold_value,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`

	Acknowledged bool `json:"acknowledged"`
	Resolved     bool `json:"resolved"`
	AutoResolve  bool `json:"auto_resolve"`

	// Escalated marks that the alert has already been handed to the
	// escalator; escalation fires at most once per alert.
	Escalated bool `json:"escalated"`

	SuggestedActions []string `json:"suggested_actions,omitempty"`
	RelatedAlerts    []string `json:"related_alerts,omitempty"`

	// NotificationChannels is the channel set computed from severity at
	// creation time. The snapshot is authoritative for the alert's lifetime
	// even if channel configuration changes later.
	NotificationChannels []ChannelType `json:"notification_channels"`

	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewAlertID derives a globally unique alert id from category, metric, and
// creation time. The uuid suffix keeps ids unique across re-evaluations within
// the same second.
func NewAlertID(alertType AlertType, metric string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d-%s", alertType, metric, at.Unix(), uuid.NewString()[:8])
}

// dedupKey identifies "the same ongoing incident" for deduplication purposes
func (a *Alert) dedupKey() string {
	return fmt.Sprintf("%s|%s|%s", a.Type, a.Metric, a.Severity)
}

// rateKey identifies the rate-limiting budget an alert draws from. Distinct
// severities for the same metric share one budget.
func (a *Alert) rateKey() string {
	return fmt.Sprintf("%s|%s", a.Type, a.Metric)
}

// AlertThreshold carries static warning/critical bounds for a named metric.
// Absent bounds mean "no bound on that side."
type AlertThreshold struct {
	Metric             string        `yaml:"metric" json:"metric"`
	WarningMin         *float64      `yaml:"warning_min" json:"warning_min,omitempty"`
	WarningMax         *float64      `yaml:"warning_max" json:"warning_max,omitempty"`
	CriticalMin        *float64      `yaml:"critical_min" json:"critical_min,omitempty"`
	CriticalMax        *float64      `yaml:"critical_max" json:"critical_max,omitempty"`
	Enabled            bool          `yaml:"enabled" json:"enabled"`
	AutoResolveTimeout time.Duration `yaml:"auto_resolve_timeout" json:"auto_resolve_timeout"`
}

// ThresholdUpdate is a partial update merged into an existing threshold.
// Nil fields leave the current value untouched.
type ThresholdUpdate struct {
	WarningMin         *float64       `json:"warning_min,omitempty"`
	WarningMax         *float64       `json:"warning_max,omitempty"`
	CriticalMin        *float64       `json:"critical_min,omitempty"`
	CriticalMax        *float64       `json:"critical_max,omitempty"`
	Enabled            *bool          `json:"enabled,omitempty"`
	AutoResolveTimeout *time.Duration `json:"auto_resolve_timeout,omitempty"`
}

// EngineStatistics summarizes the engine's alert population
type EngineStatistics struct {
	Total             int                   `json:"total"`
	BySeverity        map[AlertSeverity]int `json:"by_severity"`
	ByType            map[AlertType]int     `json:"by_type"`
	AcknowledgedCount int                   `json:"acknowledged_count"`
	ResolvedCount     int                   `json:"resolved_count"`
}

// AlertSummary is the transport-facing projection of an alert handed to
// notification channels
type AlertSummary struct {
	ID           string        `json:"id"`
	Type         AlertType     `json:"type"`
	Severity     AlertSeverity `json:"severity"`
	Title        string        `json:"title"`
	Message      string        `json:"message"`
	Metric       string        `json:"metric,omitempty"`
	CurrentValue float64       `json:"current_value,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Summary builds the transport-facing projection of the alert
func (a *Alert) Summary() AlertSummary {
	return AlertSummary{
		ID:           a.ID,
		Type:         a.Type,
		Severity:     a.Severity,
		Title:        a.Title,
		Message:      a.Message,
		Metric:       a.Metric,
		CurrentValue: a.CurrentValue,
		CreatedAt:    a.CreatedAt,
	}
}

// MetricRow is one observation returned by a metric source. Numeric fields are
// addressable by name.
type MetricRow struct {
	Timestamp time.Time
	Fields    map[string]float64
}
