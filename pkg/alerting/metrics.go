package alerting

import (
	"github.com/prometheus/client_golang/prometheus"
)

// engineMetrics contains the Prometheus metrics for the alerting engine
type engineMetrics struct {
	AlertsGenerated   *prometheus.CounterVec
	AlertsDeduped     prometheus.Counter
	AlertsRateLimited prometheus.Counter
	AlertsResolved    prometheus.Counter

	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec

	CollectorFailures *prometheus.CounterVec
	CollectorDuration *prometheus.HistogramVec

	ActiveAlerts prometheus.Gauge
	TickDuration prometheus.Histogram
}

// newEngineMetrics builds and registers the engine metric set. Duplicate
// registrations (e.g. engine restart within one process) are tolerated.
func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &engineMetrics{
		AlertsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerting_alerts_generated_total",
			Help: "Total number of alerts accepted by the pipeline",
		}, []string{"type", "severity"}),

		AlertsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerting_alerts_deduplicated_total",
			Help: "Total number of candidate alerts suppressed as duplicates",
		}),

		AlertsRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerting_alerts_rate_limited_total",
			Help: "Total number of candidate alerts dropped by the hourly rate limiter",
		}),

		AlertsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerting_alerts_resolved_total",
			Help: "Total number of alerts resolved, explicitly or automatically",
		}),

		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerting_notifications_sent_total",
			Help: "Total number of notifications delivered per channel",
		}, []string{"channel"}),

		NotificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerting_notifications_failed_total",
			Help: "Total number of notification deliveries that failed per channel",
		}, []string{"channel"}),

		CollectorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerting_collector_failures_total",
			Help: "Total number of collector runs that failed",
		}, []string{"collector"}),

		CollectorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "alerting_collector_duration_seconds",
			Help:    "Duration of collector runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"collector"}),

		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alerting_active_alerts",
			Help: "Number of alerts currently in the active set",
		}),

		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alerting_pipeline_tick_duration_seconds",
			Help:    "Duration of full pipeline ticks",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	collectors := []prometheus.Collector{
		m.AlertsGenerated,
		m.AlertsDeduped,
		m.AlertsRateLimited,
		m.AlertsResolved,
		m.NotificationsSent,
		m.NotificationsFailed,
		m.CollectorFailures,
		m.CollectorDuration,
		m.ActiveAlerts,
		m.TickDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}

	return m
}
