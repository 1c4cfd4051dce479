package alerting

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sentinelops/alerting-engine/pkg/logging"
)

// MetricSource provides read access to raw metric observations. The engine
// does not care how it is implemented as long as rows come back in timestamp
// order with numeric fields addressable by name.
type MetricSource interface {
	Query(ctx context.Context, category string, window time.Duration) ([]MetricRow, error)
}

// Collector produces zero or more candidate alerts for a scheduler tick.
// Collectors are independent and failure-isolated: a failing collector returns
// an error and zero alerts rather than aborting the tick.
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]*Alert, error)
}

// realtimeMetrics is the fixed set of metrics scanned for statistical anomalies
var realtimeMetrics = []string{"revenue", "impressions", "clicks", "conversions"}

const (
	realtimeLookback    = 24 * time.Hour
	performanceLookback = time.Hour
	performanceMaxRows  = 1000
	businessLookback    = 24 * time.Hour
	workflowLookback    = time.Hour
)

// RealtimeCollector feeds recent samples of a fixed metric set through the
// statistical anomaly detector
type RealtimeCollector struct {
	source MetricSource
	cfg    AnomalyConfig
	logger *logging.StructuredLogger
}

// NewRealtimeCollector creates the realtime/statistical collector
func NewRealtimeCollector(source MetricSource, cfg AnomalyConfig, logger *logging.StructuredLogger) *RealtimeCollector {
	return &RealtimeCollector{source: source, cfg: cfg, logger: logger.WithComponent("realtime-collector")}
}

func (c *RealtimeCollector) Name() string { return "realtime" }

// Collect queries the 24h lookback window, extracts a numeric series per
// metric, and wraps non-nil detector verdicts into anomaly alerts
func (c *RealtimeCollector) Collect(ctx context.Context) ([]*Alert, error) {
	rows, err := c.source.Query(ctx, "realtime", realtimeLookback)
	if err != nil {
		return nil, fmt.Errorf("query realtime metrics: %w", err)
	}

	var alerts []*Alert
	for _, metric := range realtimeMetrics {
		series := extractSeries(rows, metric)
		if len(series) < c.cfg.MinDataPoints {
			c.logger.DebugWithContext("Skipping anomaly check, insufficient samples",
				"metric", metric,
				"samples", len(series),
				"required", c.cfg.MinDataPoints,
			)
			continue
		}
		verdict := DetectAnomaly(metric, series, c.cfg)
		if verdict == nil {
			continue
		}
		if verdict.Confidence < c.cfg.ConfidenceThreshold {
			c.logger.DebugWithContext("Discarding anomaly below confidence threshold",
				"metric", metric,
				"confidence", verdict.Confidence,
				"z_score", verdict.ZScore,
			)
			continue
		}

		alert := newAlert(AlertTypeAnomaly, verdict.Severity, metric, c.Name())
		alert.Title = fmt.Sprintf("Anomaly detected in %s", metric)
		alert.Message = fmt.Sprintf("%s deviates %.2f standard deviations from its recent baseline (current %.2f, baseline %.2f)",
			metric, verdict.ZScore, verdict.CurrentValue, verdict.Mean)
		alert.CurrentValue = verdict.CurrentValue
		alert.ExpectedValue = verdict.Mean
		alert.Confidence = verdict.Confidence
		alert.AutoResolve = true
		alert.SuggestedActions = []string{
			fmt.Sprintf("Inspect recent changes affecting %s", metric),
			"Compare against the same window on previous days",
		}
		alert.Metadata["z_score"] = strconv.FormatFloat(verdict.ZScore, 'f', 4, 64)
		alert.Metadata["std_dev"] = strconv.FormatFloat(verdict.StdDev, 'f', 4, 64)
		alert.Metadata["sample_size"] = strconv.Itoa(verdict.SampleSize)
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// extractSeries pulls the named field out of the ordered rows
func extractSeries(rows []MetricRow, name string) []float64 {
	series := make([]float64, 0, len(rows))
	for _, row := range rows {
		if v, ok := row.Fields[name]; ok {
			series = append(series, v)
		}
	}
	return series
}

// PerformanceCollector compares aggregate response time and error rate from
// the last hour against the configured thresholds
type PerformanceCollector struct {
	source     MetricSource
	thresholds *ThresholdRegistry
	logger     *logging.StructuredLogger
}

// NewPerformanceCollector creates the performance collector
func NewPerformanceCollector(source MetricSource, thresholds *ThresholdRegistry, logger *logging.StructuredLogger) *PerformanceCollector {
	return &PerformanceCollector{source: source, thresholds: thresholds, logger: logger.WithComponent("performance-collector")}
}

func (c *PerformanceCollector) Name() string { return "performance" }

func (c *PerformanceCollector) Collect(ctx context.Context) ([]*Alert, error) {
	rows, err := c.source.Query(ctx, "performance", performanceLookback)
	if err != nil {
		return nil, fmt.Errorf("query performance metrics: %w", err)
	}
	if len(rows) == 0 {
		c.logger.DebugWithContext("No performance samples in window")
		return nil, nil
	}
	if len(rows) > performanceMaxRows {
		rows = rows[len(rows)-performanceMaxRows:]
	}

	var alerts []*Alert

	responseTimes := extractSeries(rows, "response_time")
	if len(responseTimes) > 0 {
		avg := mean(responseTimes)
		if severity, bound, breached := evaluateMaxBound(c.thresholds.Get("response_time"), avg, SeverityMedium); breached {
			alert := newAlert(AlertTypePerformance, severity, "response_time", c.Name())
			alert.Title = "High API response time"
			alert.Message = fmt.Sprintf("Average response time %.0fms exceeds the %.0fms bound over the last hour", avg, bound)
			alert.CurrentValue = avg
			alert.ThresholdValue = bound
			alert.AutoResolve = true
			alert.SuggestedActions = []string{
				"Check database query latency",
				"Check upstream dependency health",
			}
			alerts = append(alerts, alert)
		}
	}

	statuses := extractSeries(rows, "status_code")
	if len(statuses) > 0 {
		var failures int
		for _, code := range statuses {
			if code >= 500 {
				failures++
			}
		}
		errorRate := float64(failures) / float64(len(statuses)) * 100
		if severity, bound, breached := evaluateMaxBound(c.thresholds.Get("error_rate"), errorRate, SeverityHigh); breached {
			alert := newAlert(AlertTypePerformance, severity, "error_rate", c.Name())
			alert.Title = "Elevated API error rate"
			alert.Message = fmt.Sprintf("%.2f%% of responses failed over the last hour (bound %.2f%%)", errorRate, bound)
			alert.CurrentValue = errorRate
			alert.ThresholdValue = bound
			alert.AutoResolve = true
			alert.SuggestedActions = []string{
				"Inspect recent error logs",
				"Check for a recent deployment",
			}
			alerts = append(alerts, alert)
		}
	}

	return alerts, nil
}

// BusinessCollector compares the current day's aggregate business metrics
// against their minimum thresholds. Business alerts require human resolution,
// so auto-resolve stays off.
type BusinessCollector struct {
	source     MetricSource
	thresholds *ThresholdRegistry
	logger     *logging.StructuredLogger
}

// NewBusinessCollector creates the business collector
func NewBusinessCollector(source MetricSource, thresholds *ThresholdRegistry, logger *logging.StructuredLogger) *BusinessCollector {
	return &BusinessCollector{source: source, thresholds: thresholds, logger: logger.WithComponent("business-collector")}
}

func (c *BusinessCollector) Name() string { return "business" }

func (c *BusinessCollector) Collect(ctx context.Context) ([]*Alert, error) {
	rows, err := c.source.Query(ctx, "business", businessLookback)
	if err != nil {
		return nil, fmt.Errorf("query business metrics: %w", err)
	}
	if len(rows) == 0 {
		c.logger.DebugWithContext("No business samples in window")
		return nil, nil
	}

	var alerts []*Alert

	revenues := extractSeries(rows, "revenue")
	if len(revenues) > 0 {
		total := sum(revenues)
		if severity, bound, breached := evaluateMinBound(c.thresholds.Get("revenue"), total, SeverityHigh); breached {
			alert := newAlert(AlertTypeBusiness, severity, "revenue", c.Name())
			alert.Title = "Daily revenue below threshold"
			alert.Message = fmt.Sprintf("Revenue %.2f is below the %.2f bound for today", total, bound)
			alert.CurrentValue = total
			alert.ThresholdValue = bound
			alert.AutoResolve = false
			alert.SuggestedActions = []string{
				"Verify payment provider health",
				"Check traffic acquisition channels",
			}
			alerts = append(alerts, alert)
		}
	}

	conversions := extractSeries(rows, "conversion_rate")
	if len(conversions) > 0 {
		avg := mean(conversions)
		if severity, bound, breached := evaluateMinBound(c.thresholds.Get("conversion_rate"), avg, SeverityMedium); breached {
			alert := newAlert(AlertTypeBusiness, severity, "conversion_rate", c.Name())
			alert.Title = "Conversion rate below threshold"
			alert.Message = fmt.Sprintf("Conversion rate %.2f%% is below the %.2f%% bound for today", avg, bound)
			alert.CurrentValue = avg
			alert.ThresholdValue = bound
			alert.AutoResolve = false
			alert.SuggestedActions = []string{
				"Review checkout funnel for regressions",
				"Compare against historical conversion baseline",
			}
			alerts = append(alerts, alert)
		}
	}

	return alerts, nil
}

// WorkflowCollector computes the workflow failure rate over the last hour and
// alerts when it exceeds 10% (critical above 30%)
type WorkflowCollector struct {
	source MetricSource
	logger *logging.StructuredLogger
}

// NewWorkflowCollector creates the workflow collector
func NewWorkflowCollector(source MetricSource, logger *logging.StructuredLogger) *WorkflowCollector {
	return &WorkflowCollector{source: source, logger: logger.WithComponent("workflow-collector")}
}

func (c *WorkflowCollector) Name() string { return "workflow" }

func (c *WorkflowCollector) Collect(ctx context.Context) ([]*Alert, error) {
	rows, err := c.source.Query(ctx, "workflow", workflowLookback)
	if err != nil {
		return nil, fmt.Errorf("query workflow executions: %w", err)
	}

	outcomes := extractSeries(rows, "failed")
	if len(outcomes) == 0 {
		c.logger.DebugWithContext("No workflow executions in window")
		return nil, nil
	}

	var failed int
	for _, v := range outcomes {
		if v > 0 {
			failed++
		}
	}
	failureRate := float64(failed) / float64(len(outcomes)) * 100
	if failureRate <= 10 {
		c.logger.DebugWithContext("Workflow failure rate within bounds",
			"failed", failed,
			"total", len(outcomes),
		)
		return nil, nil
	}

	severity := SeverityHigh
	if failureRate > 30 {
		severity = SeverityCritical
	}

	alert := newAlert(AlertTypeWorkflow, severity, "workflow_failure_rate", c.Name())
	alert.Title = "Workflow failure rate elevated"
	alert.Message = fmt.Sprintf("%d of %d workflow executions failed in the last hour (%.1f%%)", failed, len(outcomes), failureRate)
	alert.CurrentValue = failureRate
	alert.ThresholdValue = 10
	alert.AutoResolve = false
	alert.SuggestedActions = []string{
		"Inspect failed workflow execution logs",
		"Check external integrations used by workflows",
	}
	return []*Alert{alert}, nil
}

// newAlert builds a candidate alert with its channel set snapshotted from the
// severity routing matrix
func newAlert(alertType AlertType, severity AlertSeverity, metric, source string) *Alert {
	now := time.Now()
	return &Alert{
		ID:                   NewAlertID(alertType, metric, now),
		Type:                 alertType,
		Severity:             severity,
		Source:               source,
		Metric:               metric,
		NotificationChannels: ChannelsForSeverity(severity),
		Metadata:             make(map[string]string),
		CreatedAt:            now,
	}
}

// evaluateMaxBound checks a value against a threshold's upper bounds. The
// warning severity differs per metric, so callers pass it in; a critical
// breach always yields critical.
func evaluateMaxBound(t *AlertThreshold, value float64, warnSeverity AlertSeverity) (AlertSeverity, float64, bool) {
	if t == nil {
		return "", 0, false
	}
	if t.CriticalMax != nil && value > *t.CriticalMax {
		return SeverityCritical, *t.CriticalMax, true
	}
	if t.WarningMax != nil && value > *t.WarningMax {
		return warnSeverity, *t.WarningMax, true
	}
	return "", 0, false
}

// evaluateMinBound is the lower-bound counterpart of evaluateMaxBound
func evaluateMinBound(t *AlertThreshold, value float64, warnSeverity AlertSeverity) (AlertSeverity, float64, bool) {
	if t == nil {
		return "", 0, false
	}
	if t.CriticalMin != nil && value < *t.CriticalMin {
		return SeverityCritical, *t.CriticalMin, true
	}
	if t.WarningMin != nil && value < *t.WarningMin {
		return warnSeverity, *t.WarningMin, true
	}
	return "", 0, false
}

func sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}
