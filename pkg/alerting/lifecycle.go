package alerting

import (
	"context"
	"time"

	"github.com/sentinelops/alerting-engine/pkg/logging"
)

// Escalator is the extension point for escalating long-unacknowledged alerts.
// The default implementation only logs; a real escalation policy (paging,
// re-notification at higher severity) can be substituted without touching the
// pipeline.
type Escalator interface {
	Escalate(ctx context.Context, alert *Alert, unackedFor time.Duration)
}

// PatternLearner is the extension point for the pattern-learning pass over
// recent alert history. The default implementation is a no-op.
type PatternLearner interface {
	Learn(ctx context.Context, history []*Alert)
}

// NoopLearner performs no pattern learning
type NoopLearner struct{}

func (NoopLearner) Learn(context.Context, []*Alert) {}

// LogEscalator logs long-unacknowledged alerts without taking action
type LogEscalator struct {
	Logger *logging.StructuredLogger
}

func (e LogEscalator) Escalate(_ context.Context, alert *Alert, unackedFor time.Duration) {
	e.Logger.WarnWithContext("Alert unacknowledged past escalation timeout",
		"alert_id", alert.ID,
		"severity", string(alert.Severity),
		"unacknowledged_for", unackedFor.String(),
	)
}

// Acknowledge marks an active alert as acknowledged. Acknowledgement is
// orthogonal to resolution: the alert stays active. Returns false if the id
// is not in the active set.
func (e *Engine) Acknowledge(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	alert, ok := e.activeAlerts[id]
	if !ok {
		return false
	}
	alert.Acknowledged = true
	e.persistAsync(alert)
	e.logger.InfoWithContext("Alert acknowledged", "alert_id", id)
	return true
}

// Resolve marks an active alert as resolved and removes it from the active
// set. Resolved alerts transition to the persistence store's ownership.
// Returns false if the id is not in the active set.
func (e *Engine) Resolve(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolveLocked(id)
}

// resolveLocked is Resolve without the lock; callers hold e.mu
func (e *Engine) resolveLocked(id string) bool {
	alert, ok := e.activeAlerts[id]
	if !ok {
		return false
	}
	alert.Resolved = true
	delete(e.activeAlerts, id)
	e.persistAsync(alert)
	e.metrics.AlertsResolved.Inc()
	e.metrics.ActiveAlerts.Set(float64(len(e.activeAlerts)))
	e.logger.InfoWithContext("Alert resolved", "alert_id", id, "severity", string(alert.Severity))
	return true
}

// runCleanup sweeps the active set: alerts eligible for auto-resolve whose
// timeout has elapsed are resolved, and any entries already marked resolved
// are purged.
func (e *Engine) runCleanup(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var autoResolved, purged int
	for id, alert := range e.activeAlerts {
		if alert.Resolved {
			delete(e.activeAlerts, id)
			purged++
			continue
		}
		if !alert.AutoResolve {
			continue
		}
		timeout := e.thresholds.AutoResolveTimeout(alert.Metric, defaultAutoResolveTimeout)
		if now.Sub(alert.CreatedAt) >= timeout {
			e.resolveLocked(id)
			autoResolved++
		}
	}

	e.metrics.ActiveAlerts.Set(float64(len(e.activeAlerts)))
	e.logger.InfoWithContext("Alert cleanup pass completed",
		"auto_resolved", autoResolved,
		"purged", purged,
		"active", len(e.activeAlerts),
	)
}

// checkEscalations hands long-unacknowledged alerts to the escalator. Each
// alert escalates at most once; the marker keeps a paging escalator from
// firing again on every tick.
func (e *Engine) checkEscalations(ctx context.Context, now time.Time) {
	e.mu.Lock()
	var overdue []*Alert
	timeout := e.config.NotificationSettings.EscalationTimeout
	for _, alert := range e.activeAlerts {
		if alert.Acknowledged || alert.Escalated {
			continue
		}
		if now.Sub(alert.CreatedAt) >= timeout {
			alert.Escalated = true
			overdue = append(overdue, alert)
		}
	}
	e.mu.Unlock()

	for _, alert := range overdue {
		e.escalator.Escalate(ctx, alert, now.Sub(alert.CreatedAt))
	}
}
