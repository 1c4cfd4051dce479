package alerting

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/sentinelops/alerting-engine/pkg/logging"
)

const (
	dedupWindow               = time.Hour
	rateLimitWindow           = time.Hour
	cleanupInterval           = time.Hour
	defaultAutoResolveTimeout = time.Hour
)

// Store is the persistence interface consumed by the engine. Persistence is a
// write-through, best-effort side channel: the in-memory active set remains
// the source of truth and persistence failures never block alert acceptance.
type Store interface {
	Upsert(ctx context.Context, alert *Alert) error
	LoadUnresolved(ctx context.Context) ([]*Alert, error)
}

// rateWindow tracks the hourly rate-limit budget for one (type, metric) key
type rateWindow struct {
	count       int
	windowStart time.Time
}

// Engine is the alert pipeline orchestrator. A single background scheduler
// drives two periodic tasks: the pipeline tick (collect, dedup, rate-limit,
// persist, dispatch) and the hourly lifecycle cleanup sweep.
type Engine struct {
	logger     *logging.StructuredLogger
	thresholds *ThresholdRegistry
	collectors []Collector
	dispatcher *Dispatcher
	store      Store
	escalator  Escalator
	learner    PatternLearner
	metrics    *engineMetrics

	// mu guards the active set, history, rate counters, config, and last
	// tick timestamp. The cleanup sweep and pipeline tick share it so their
	// writes never interleave.
	mu           sync.RWMutex
	config       *EngineConfig
	activeAlerts map[string]*Alert
	history      []*Alert
	rateCounters map[string]*rateWindow
	lastTick     time.Time

	// tickMu is the non-reentrant scheduling guard: a new tick must not
	// start while the previous one is still running.
	tickMu sync.Mutex

	runMu   sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// EngineOptions carries the optional collaborators of the engine. Zero values
// select the defaults (log-only escalator, no-op learner, default Prometheus
// registerer).
type EngineOptions struct {
	Escalator  Escalator
	Learner    PatternLearner
	Registerer prometheus.Registerer
}

// NewEngine assembles the alerting engine from its collaborators
func NewEngine(cfg *EngineConfig, thresholds *ThresholdRegistry, channels *ChannelRegistry,
	collectors []Collector, store Store, logger *logging.StructuredLogger, opts EngineOptions) *Engine {

	if cfg == nil {
		cfg = DefaultEngineConfig()
	}

	metrics := newEngineMetrics(opts.Registerer)

	e := &Engine{
		logger:       logger.WithComponent("alerting-engine"),
		config:       cfg,
		thresholds:   thresholds,
		collectors:   collectors,
		dispatcher:   NewDispatcher(channels, cfg.NotificationSettings, metrics, logger),
		store:        store,
		escalator:    opts.Escalator,
		learner:      opts.Learner,
		metrics:      metrics,
		activeAlerts: make(map[string]*Alert),
		rateCounters: make(map[string]*rateWindow),
	}
	if e.escalator == nil {
		e.escalator = LogEscalator{Logger: e.logger}
	}
	if e.learner == nil {
		e.learner = NoopLearner{}
	}
	return e
}

// Start warms the active set from the store and launches the scheduler loops.
// Only a failure to start the scheduler itself is escalated; a store warm-up
// failure is logged and the engine starts empty.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.started {
		return fmt.Errorf("alerting engine already started")
	}
	if !e.snapshotConfig().Enabled {
		e.logger.InfoWithContext("Alerting engine disabled by configuration")
		return nil
	}

	e.warmStart(ctx)

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.started = true

	go e.pipelineLoop(loopCtx)
	go e.cleanupLoop(loopCtx)

	cfg := e.snapshotConfig()
	e.logger.InfoWithContext("Alerting engine started",
		"update_interval", cfg.UpdateInterval.String(),
		"max_alerts_per_hour", cfg.MaxAlertsPerHour,
		"collectors", len(e.collectors),
	)
	return nil
}

// Stop stops scheduling future ticks. An in-flight tick is not canceled; it
// finishes on its own.
func (e *Engine) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if !e.started {
		return
	}
	e.cancel()
	e.started = false
	e.logger.InfoWithContext("Alerting engine stopped")
}

// Running reports whether the scheduler loops are active
func (e *Engine) Running() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.started
}

// LastTick returns the completion time of the most recent pipeline tick
func (e *Engine) LastTick() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastTick
}

// warmStart loads unresolved alerts persisted by a previous run into the
// active set
func (e *Engine) warmStart(ctx context.Context) {
	if e.store == nil {
		return
	}
	cfg := e.snapshotConfig()
	loadCtx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
	defer cancel()

	alerts, err := e.store.LoadUnresolved(loadCtx)
	if err != nil {
		e.logger.ErrorWithContext("Failed to warm active set from store", err)
		return
	}

	e.mu.Lock()
	for _, alert := range alerts {
		e.activeAlerts[alert.ID] = alert
		e.history = append(e.history, alert)
	}
	e.metrics.ActiveAlerts.Set(float64(len(e.activeAlerts)))
	e.mu.Unlock()

	e.logger.InfoWithContext("Warmed active set from store", "alerts", len(alerts))
}

// pipelineLoop drives pipeline ticks at the configured update interval. The
// interval is re-read every cycle so live reconfiguration takes effect without
// a restart.
func (e *Engine) pipelineLoop(ctx context.Context) {
	for {
		interval := e.snapshotConfig().UpdateInterval
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			e.runPipeline(ctx)
		}
	}
}

// cleanupLoop drives the lifecycle cleanup sweep on a fixed hourly interval
func (e *Engine) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runCleanup(time.Now())
		}
	}
}

// runPipeline executes one pipeline tick: collect from all sources, apply
// deduplication and rate limiting, persist and store accepted alerts, and
// dispatch notifications. The tick guard keeps ticks non-overlapping.
func (e *Engine) runPipeline(ctx context.Context) {
	if !e.tickMu.TryLock() {
		e.logger.WarnWithContext("Pipeline tick skipped, previous tick still running")
		return
	}
	defer e.tickMu.Unlock()

	start := time.Now()
	cfg := e.snapshotConfig()

	candidates := e.collectAll(ctx, cfg)
	accepted := e.admit(candidates, cfg, time.Now())

	for _, alert := range accepted {
		e.persist(ctx, alert, cfg)
		e.dispatcher.Dispatch(ctx, alert)
	}

	e.learner.Learn(ctx, e.recentHistory())

	if cfg.NotificationSettings.EscalationEnabled {
		e.checkEscalations(ctx, time.Now())
	}

	e.mu.Lock()
	e.lastTick = time.Now()
	e.mu.Unlock()

	e.metrics.TickDuration.Observe(time.Since(start).Seconds())
	if len(accepted) > 0 {
		e.logger.InfoWithContext("Pipeline tick completed",
			"candidates", len(candidates),
			"accepted", len(accepted),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// collectAll runs every collector concurrently and concatenates their
// candidates. Collectors are read-only against independent sources, so the
// only shared state is the result slice. All collectors complete (or fail
// individually) before deduplication proceeds.
func (e *Engine) collectAll(ctx context.Context, cfg *EngineConfig) []*Alert {
	var (
		resultMu   sync.Mutex
		candidates []*Alert
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, collector := range e.collectors {
		collector := collector
		g.Go(func() error {
			collectCtx, cancel := context.WithTimeout(gctx, cfg.QueryTimeout)
			defer cancel()

			collectStart := time.Now()
			alerts, err := collector.Collect(collectCtx)
			e.metrics.CollectorDuration.WithLabelValues(collector.Name()).Observe(time.Since(collectStart).Seconds())
			if err != nil {
				// A failing collector yields zero alerts for this
				// tick; the tick itself goes on.
				e.metrics.CollectorFailures.WithLabelValues(collector.Name()).Inc()
				e.logger.ErrorWithContext("Collector failed", err, "collector", collector.Name())
				return nil
			}

			resultMu.Lock()
			candidates = append(candidates, alerts...)
			resultMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return candidates
}

// admit applies deduplication and rate limiting to the candidates and inserts
// the survivors into the active set and history
func (e *Engine) admit(candidates []*Alert, cfg *EngineConfig, now time.Time) []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	accepted := make([]*Alert, 0, len(candidates))
	for _, candidate := range candidates {
		if existing := e.findDuplicateLocked(candidate, now); existing != nil {
			if cfg.AutoAcknowledgeDuplicates {
				existing.Acknowledged = true
			}
			e.metrics.AlertsDeduped.Inc()
			continue
		}
		if !e.allowRateLocked(candidate, cfg, now) {
			e.metrics.AlertsRateLimited.Inc()
			e.logger.WarnWithContext("Alert dropped by rate limiter",
				"type", string(candidate.Type),
				"metric", candidate.Metric,
			)
			continue
		}

		e.activeAlerts[candidate.ID] = candidate
		e.history = append(e.history, candidate)
		if len(e.history) > cfg.HistoryLimit {
			e.history = e.history[len(e.history)-cfg.HistoryLimit:]
		}
		e.metrics.AlertsGenerated.WithLabelValues(string(candidate.Type), string(candidate.Severity)).Inc()
		accepted = append(accepted, candidate)
	}

	e.metrics.ActiveAlerts.Set(float64(len(e.activeAlerts)))
	return accepted
}

// findDuplicateLocked returns an unresolved active alert representing the same
// ongoing incident: identical (type, metric, severity) created within the last
// hour. Callers hold e.mu.
func (e *Engine) findDuplicateLocked(candidate *Alert, now time.Time) *Alert {
	key := candidate.dedupKey()
	for _, existing := range e.activeAlerts {
		if existing.Resolved {
			continue
		}
		if existing.dedupKey() != key {
			continue
		}
		if now.Sub(existing.CreatedAt) <= dedupWindow {
			return existing
		}
	}
	return nil
}

// allowRateLocked checks and updates the hourly sliding-window budget for the
// candidate's (type, metric) key. Distinct severities for the same metric
// share one budget. Callers hold e.mu.
func (e *Engine) allowRateLocked(candidate *Alert, cfg *EngineConfig, now time.Time) bool {
	key := candidate.rateKey()
	window, ok := e.rateCounters[key]
	if !ok || now.Sub(window.windowStart) > rateLimitWindow {
		window = &rateWindow{windowStart: now}
		e.rateCounters[key] = window
	}
	if window.count >= cfg.MaxAlertsPerHour {
		return false
	}
	window.count++
	return true
}

// persist writes the alert through to the store, best-effort
func (e *Engine) persist(ctx context.Context, alert *Alert, cfg *EngineConfig) {
	if e.store == nil {
		return
	}
	persistCtx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
	defer cancel()

	if err := e.store.Upsert(persistCtx, alert); err != nil {
		// The alert remains valid in the active set.
		e.logger.ErrorWithContext("Failed to persist alert", err, "alert_id", alert.ID)
	}
}

// persistAsync persists without blocking the caller; used by lifecycle
// operations that run under the state lock
func (e *Engine) persistAsync(alert *Alert) {
	if e.store == nil {
		return
	}
	copied := *alert
	timeout := e.config.QueryTimeout
	go func() {
		persistCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := e.store.Upsert(persistCtx, &copied); err != nil {
			e.logger.ErrorWithContext("Failed to persist alert", err, "alert_id", copied.ID)
		}
	}()
}

// GetActiveAlerts returns a snapshot of the active set, newest first
func (e *Engine) GetActiveAlerts() []*Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	alerts := make([]*Alert, 0, len(e.activeAlerts))
	for _, alert := range e.activeAlerts {
		copied := *alert
		alerts = append(alerts, &copied)
	}
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
	return alerts
}

// UpdateThreshold merges a partial update into an existing threshold. Unknown
// metrics are a no-op; the returned bool reports whether anything changed.
func (e *Engine) UpdateThreshold(metric string, update ThresholdUpdate) (bool, error) {
	updated, err := e.thresholds.Update(metric, update)
	if err != nil {
		return false, err
	}
	if updated {
		e.logger.InfoWithContext("Threshold updated", "metric", metric)
	}
	return updated, nil
}

// GetStatistics summarizes the retained alert population
func (e *Engine) GetStatistics() EngineStatistics {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := EngineStatistics{
		Total:      len(e.history),
		BySeverity: make(map[AlertSeverity]int),
		ByType:     make(map[AlertType]int),
	}
	for _, alert := range e.history {
		stats.BySeverity[alert.Severity]++
		stats.ByType[alert.Type]++
		if alert.Acknowledged {
			stats.AcknowledgedCount++
		}
		if alert.Resolved {
			stats.ResolvedCount++
		}
	}
	return stats
}

// Reconfigure applies a live configuration update. Channel enablement and
// notification settings are rebuilt from the new configuration; alerts already
// created keep their channel-set snapshot.
func (e *Engine) Reconfigure(cfg *EngineConfig, transports map[ChannelType]Transport) {
	if cfg == nil {
		return
	}
	cfg.normalize()

	e.mu.Lock()
	e.config = cfg
	e.mu.Unlock()

	e.dispatcher.Reconfigure(NewChannelRegistry(cfg.Channels, transports), cfg.NotificationSettings)
	e.logger.InfoWithContext("Engine reconfigured",
		"update_interval", cfg.UpdateInterval.String(),
		"max_alerts_per_hour", cfg.MaxAlertsPerHour,
	)
}

// snapshotConfig returns the current configuration pointer; the config struct
// itself is treated as immutable once applied
func (e *Engine) snapshotConfig() *EngineConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config
}

// recentHistory returns a copy of the retained history slice for the learner
func (e *Engine) recentHistory() []*Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*Alert(nil), e.history...)
}
