package alerting

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/alerting-engine/pkg/logging"
)

type stubCollector struct {
	name string
	mu   sync.Mutex
	next []*Alert
	err  error
}

func (c *stubCollector) Name() string { return c.name }

func (c *stubCollector) Collect(context.Context) ([]*Alert, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	out := c.next
	c.next = nil
	return out, nil
}

func (c *stubCollector) emit(alerts ...*Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = append(c.next, alerts...)
}

type fakeStore struct {
	mu     sync.Mutex
	alerts map[string]*Alert
}

func newFakeStore() *fakeStore {
	return &fakeStore{alerts: make(map[string]*Alert)}
}

func (s *fakeStore) Upsert(_ context.Context, alert *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *alert
	s.alerts[alert.ID] = &copied
	return nil
}

func (s *fakeStore) LoadUnresolved(context.Context) ([]*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Alert
	for _, alert := range s.alerts {
		if !alert.Resolved {
			copied := *alert
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeStore) get(id string) *Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	if alert, ok := s.alerts[id]; ok {
		copied := *alert
		return &copied
	}
	return nil
}

type recordingTransport struct {
	mu   sync.Mutex
	sent []AlertSummary
}

func (t *recordingTransport) Send(_ context.Context, summary AlertSummary) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, summary)
	return nil
}

func (t *recordingTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

func testLogger() *logging.StructuredLogger {
	return logging.NewStructuredLogger(logging.Config{Level: logging.LevelError, ServiceName: "test"})
}

func testCandidate(severity AlertSeverity, metric string) *Alert {
	alert := newAlert(AlertTypePerformance, severity, metric, "test")
	alert.Title = "test alert"
	return alert
}

type engineFixture struct {
	engine    *Engine
	collector *stubCollector
	store     *fakeStore
	dashboard *recordingTransport
}

func newEngineFixture(t *testing.T, mutate func(*EngineConfig)) *engineFixture {
	t.Helper()

	cfg := DefaultEngineConfig()
	cfg.NotificationSettings.RateLimiting = false
	if mutate != nil {
		mutate(cfg)
	}

	thresholds, err := NewThresholdRegistry(DefaultThresholds())
	require.NoError(t, err)

	dashboard := &recordingTransport{}
	channels := NewChannelRegistry(cfg.Channels, map[ChannelType]Transport{
		ChannelDashboard: dashboard,
	})

	collector := &stubCollector{name: "stub"}
	store := newFakeStore()

	engine := NewEngine(cfg, thresholds, channels, []Collector{collector}, store, testLogger(), EngineOptions{
		Registerer: prometheus.NewRegistry(),
	})

	return &engineFixture{engine: engine, collector: collector, store: store, dashboard: dashboard}
}

func TestPipelineDeduplication(t *testing.T) {
	t.Run("same incident within the hour is suppressed", func(t *testing.T) {
		fx := newEngineFixture(t, nil)
		ctx := context.Background()

		fx.collector.emit(testCandidate(SeverityHigh, "response_time"))
		fx.engine.runPipeline(ctx)
		require.Len(t, fx.engine.GetActiveAlerts(), 1)

		fx.collector.emit(testCandidate(SeverityHigh, "response_time"))
		fx.engine.runPipeline(ctx)
		assert.Len(t, fx.engine.GetActiveAlerts(), 1, "duplicate should be suppressed")
		assert.Equal(t, 1, fx.dashboard.count(), "duplicate must not be re-notified")
	})

	t.Run("resolved incident does not suppress a new one", func(t *testing.T) {
		fx := newEngineFixture(t, nil)
		ctx := context.Background()

		first := testCandidate(SeverityHigh, "response_time")
		fx.collector.emit(first)
		fx.engine.runPipeline(ctx)
		require.True(t, fx.engine.Resolve(first.ID))

		fx.collector.emit(testCandidate(SeverityHigh, "response_time"))
		fx.engine.runPipeline(ctx)
		assert.Len(t, fx.engine.GetActiveAlerts(), 1)
		assert.Equal(t, 2, fx.engine.GetStatistics().Total)
	})

	t.Run("different severity is a different incident", func(t *testing.T) {
		fx := newEngineFixture(t, nil)
		ctx := context.Background()

		fx.collector.emit(testCandidate(SeverityHigh, "response_time"))
		fx.collector.emit(testCandidate(SeverityCritical, "response_time"))
		fx.engine.runPipeline(ctx)
		assert.Len(t, fx.engine.GetActiveAlerts(), 2)
	})

	t.Run("auto acknowledge marks the existing alert", func(t *testing.T) {
		fx := newEngineFixture(t, func(cfg *EngineConfig) {
			cfg.AutoAcknowledgeDuplicates = true
		})
		ctx := context.Background()

		first := testCandidate(SeverityHigh, "response_time")
		fx.collector.emit(first)
		fx.engine.runPipeline(ctx)

		fx.collector.emit(testCandidate(SeverityHigh, "response_time"))
		fx.engine.runPipeline(ctx)

		active := fx.engine.GetActiveAlerts()
		require.Len(t, active, 1)
		assert.True(t, active[0].Acknowledged)
	})
}

func TestPipelineRateLimiting(t *testing.T) {
	t.Run("budget bounds accepted alerts per key", func(t *testing.T) {
		fx := newEngineFixture(t, func(cfg *EngineConfig) {
			cfg.MaxAlertsPerHour = 3
		})
		ctx := context.Background()

		// Distinct severities bypass deduplication but share the
		// (type, metric) budget.
		fx.collector.emit(
			testCandidate(SeverityLow, "response_time"),
			testCandidate(SeverityMedium, "response_time"),
			testCandidate(SeverityHigh, "response_time"),
			testCandidate(SeverityCritical, "response_time"),
		)
		fx.engine.runPipeline(ctx)
		assert.Len(t, fx.engine.GetActiveAlerts(), 3, "fourth candidate must be dropped")
	})

	t.Run("budget resets after the window expires", func(t *testing.T) {
		fx := newEngineFixture(t, func(cfg *EngineConfig) {
			cfg.MaxAlertsPerHour = 1
		})
		ctx := context.Background()

		fx.collector.emit(testCandidate(SeverityHigh, "response_time"))
		fx.engine.runPipeline(ctx)
		require.Len(t, fx.engine.GetActiveAlerts(), 1)

		// Age the window past an hour; a candidate with a different
		// severity then draws from a fresh budget.
		fx.engine.mu.Lock()
		for _, window := range fx.engine.rateCounters {
			window.windowStart = time.Now().Add(-2 * time.Hour)
		}
		fx.engine.mu.Unlock()

		fx.collector.emit(testCandidate(SeverityCritical, "response_time"))
		fx.engine.runPipeline(ctx)
		assert.Len(t, fx.engine.GetActiveAlerts(), 2)
	})

	t.Run("different metrics have independent budgets", func(t *testing.T) {
		fx := newEngineFixture(t, func(cfg *EngineConfig) {
			cfg.MaxAlertsPerHour = 1
		})
		ctx := context.Background()

		fx.collector.emit(
			testCandidate(SeverityHigh, "response_time"),
			testCandidate(SeverityHigh, "error_rate"),
		)
		fx.engine.runPipeline(ctx)
		assert.Len(t, fx.engine.GetActiveAlerts(), 2)
	})
}

func TestLifecycleOperations(t *testing.T) {
	t.Run("resolve unknown id returns false and mutates nothing", func(t *testing.T) {
		fx := newEngineFixture(t, nil)
		assert.False(t, fx.engine.Resolve("no-such-alert"))
		assert.False(t, fx.engine.Acknowledge("no-such-alert"))
		assert.Empty(t, fx.engine.GetActiveAlerts())
	})

	t.Run("resolve removes the alert from the active set", func(t *testing.T) {
		fx := newEngineFixture(t, nil)
		ctx := context.Background()

		alert := testCandidate(SeverityHigh, "response_time")
		fx.collector.emit(alert)
		fx.engine.runPipeline(ctx)

		require.True(t, fx.engine.Resolve(alert.ID))
		assert.Empty(t, fx.engine.GetActiveAlerts())

		require.Eventually(t, func() bool {
			stored := fx.store.get(alert.ID)
			return stored != nil && stored.Resolved
		}, time.Second, 10*time.Millisecond, "resolution should be persisted")
	})

	t.Run("acknowledge keeps the alert active", func(t *testing.T) {
		fx := newEngineFixture(t, nil)
		ctx := context.Background()

		alert := testCandidate(SeverityHigh, "response_time")
		fx.collector.emit(alert)
		fx.engine.runPipeline(ctx)

		require.True(t, fx.engine.Acknowledge(alert.ID))
		active := fx.engine.GetActiveAlerts()
		require.Len(t, active, 1)
		assert.True(t, active[0].Acknowledged)
		assert.False(t, active[0].Resolved)
	})

	t.Run("cleanup auto-resolves expired alerts", func(t *testing.T) {
		fx := newEngineFixture(t, nil)
		ctx := context.Background()

		expired := testCandidate(SeverityMedium, "cpu_load")
		expired.AutoResolve = true
		expired.CreatedAt = time.Now().Add(-2 * time.Hour)

		manual := testCandidate(SeverityHigh, "revenue")
		manual.AutoResolve = false
		manual.CreatedAt = time.Now().Add(-48 * time.Hour)

		fx.collector.emit(expired, manual)
		fx.engine.runPipeline(ctx)
		require.Len(t, fx.engine.GetActiveAlerts(), 2)

		fx.engine.runCleanup(time.Now())

		active := fx.engine.GetActiveAlerts()
		require.Len(t, active, 1)
		assert.Equal(t, manual.ID, active[0].ID, "alerts requiring human resolution must survive cleanup")
	})
}

func TestEngineStatistics(t *testing.T) {
	fx := newEngineFixture(t, nil)
	ctx := context.Background()

	high := testCandidate(SeverityHigh, "response_time")
	critical := testCandidate(SeverityCritical, "error_rate")
	workflow := newAlert(AlertTypeWorkflow, SeverityHigh, "workflow_failure_rate", "test")

	fx.collector.emit(high, critical, workflow)
	fx.engine.runPipeline(ctx)

	require.True(t, fx.engine.Acknowledge(high.ID))
	require.True(t, fx.engine.Resolve(critical.ID))

	stats := fx.engine.GetStatistics()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.BySeverity[SeverityHigh])
	assert.Equal(t, 1, stats.BySeverity[SeverityCritical])
	assert.Equal(t, 2, stats.ByType[AlertTypePerformance])
	assert.Equal(t, 1, stats.ByType[AlertTypeWorkflow])
	assert.Equal(t, 1, stats.AcknowledgedCount)
	assert.Equal(t, 1, stats.ResolvedCount)
}

func TestEngineStartStop(t *testing.T) {
	t.Run("warm start loads unresolved alerts", func(t *testing.T) {
		fx := newEngineFixture(t, func(cfg *EngineConfig) {
			cfg.UpdateInterval = time.Hour
		})

		persisted := testCandidate(SeverityHigh, "response_time")
		require.NoError(t, fx.store.Upsert(context.Background(), persisted))

		require.NoError(t, fx.engine.Start(context.Background()))
		defer fx.engine.Stop()

		assert.True(t, fx.engine.Running())
		active := fx.engine.GetActiveAlerts()
		require.Len(t, active, 1)
		assert.Equal(t, persisted.ID, active[0].ID)
	})

	t.Run("double start fails", func(t *testing.T) {
		fx := newEngineFixture(t, func(cfg *EngineConfig) {
			cfg.UpdateInterval = time.Hour
		})
		require.NoError(t, fx.engine.Start(context.Background()))
		defer fx.engine.Stop()
		assert.Error(t, fx.engine.Start(context.Background()))
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		fx := newEngineFixture(t, func(cfg *EngineConfig) {
			cfg.UpdateInterval = time.Hour
		})
		require.NoError(t, fx.engine.Start(context.Background()))
		fx.engine.Stop()
		fx.engine.Stop()
		assert.False(t, fx.engine.Running())
	})
}

type recordingEscalator struct {
	mu    sync.Mutex
	calls []string
}

func (e *recordingEscalator) Escalate(_ context.Context, alert *Alert, _ time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, alert.ID)
}

func (e *recordingEscalator) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func TestReconfigure(t *testing.T) {
	t.Run("notification settings reach the dispatcher", func(t *testing.T) {
		fx := newEngineFixture(t, nil)

		newCfg := DefaultEngineConfig()
		newCfg.NotificationSettings.RateLimiting = true
		newCfg.NotificationSettings.MaxSendsPerMinute = 5
		newCfg.NotificationSettings.NotificationTimeout = 7 * time.Second

		fx.engine.Reconfigure(newCfg, map[ChannelType]Transport{ChannelDashboard: fx.dashboard})

		d := fx.engine.dispatcher
		d.mu.RLock()
		defer d.mu.RUnlock()
		assert.Equal(t, 7*time.Second, d.settings.NotificationTimeout)
		require.NotNil(t, d.limiter)
		assert.Equal(t, 5, d.limiter.Burst())
	})

	t.Run("new config drives subsequent ticks", func(t *testing.T) {
		fx := newEngineFixture(t, nil)

		newCfg := DefaultEngineConfig()
		newCfg.NotificationSettings.RateLimiting = false
		newCfg.MaxAlertsPerHour = 1
		fx.engine.Reconfigure(newCfg, map[ChannelType]Transport{ChannelDashboard: fx.dashboard})

		fx.collector.emit(
			testCandidate(SeverityHigh, "response_time"),
			testCandidate(SeverityCritical, "response_time"),
		)
		fx.engine.runPipeline(context.Background())
		assert.Len(t, fx.engine.GetActiveAlerts(), 1, "reloaded hourly budget must apply")
	})
}

func TestEscalationFiresOnce(t *testing.T) {
	escalator := &recordingEscalator{}

	cfg := DefaultEngineConfig()
	cfg.NotificationSettings.RateLimiting = false
	cfg.NotificationSettings.EscalationEnabled = true
	cfg.NotificationSettings.EscalationTimeout = 30 * time.Minute

	thresholds, err := NewThresholdRegistry(DefaultThresholds())
	require.NoError(t, err)
	channels := NewChannelRegistry(cfg.Channels, nil)
	engine := NewEngine(cfg, thresholds, channels, nil, newFakeStore(), testLogger(), EngineOptions{
		Escalator:  escalator,
		Registerer: prometheus.NewRegistry(),
	})

	overdue := testCandidate(SeverityHigh, "response_time")
	overdue.CreatedAt = time.Now().Add(-time.Hour)
	engine.mu.Lock()
	engine.activeAlerts[overdue.ID] = overdue
	engine.mu.Unlock()

	engine.checkEscalations(context.Background(), time.Now())
	require.Equal(t, 1, escalator.count())

	engine.checkEscalations(context.Background(), time.Now())
	assert.Equal(t, 1, escalator.count(), "an alert escalates at most once")

	fresh := testCandidate(SeverityCritical, "error_rate")
	engine.mu.Lock()
	engine.activeAlerts[fresh.ID] = fresh
	engine.mu.Unlock()

	engine.checkEscalations(context.Background(), time.Now())
	assert.Equal(t, 1, escalator.count(), "alerts inside the timeout must not escalate")
}

func TestCollectorFailureIsolation(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.NotificationSettings.RateLimiting = false

	thresholds, err := NewThresholdRegistry(DefaultThresholds())
	require.NoError(t, err)

	channels := NewChannelRegistry(cfg.Channels, nil)
	good := &stubCollector{name: "good"}
	bad := &stubCollector{name: "bad", err: fmt.Errorf("source unavailable")}

	engine := NewEngine(cfg, thresholds, channels, []Collector{bad, good}, newFakeStore(), testLogger(), EngineOptions{
		Registerer: prometheus.NewRegistry(),
	})

	good.emit(testCandidate(SeverityHigh, "response_time"))
	engine.runPipeline(context.Background())

	assert.Len(t, engine.GetActiveAlerts(), 1, "failing collector must not abort the tick")
}

func TestTickGuardIsNonReentrant(t *testing.T) {
	fx := newEngineFixture(t, nil)

	fx.collector.emit(testCandidate(SeverityHigh, "response_time"))

	// Hold the tick guard as if a previous tick were still running.
	fx.engine.tickMu.Lock()
	fx.engine.runPipeline(context.Background())
	fx.engine.tickMu.Unlock()

	assert.Empty(t, fx.engine.GetActiveAlerts(), "overlapping tick must be skipped entirely")
}
