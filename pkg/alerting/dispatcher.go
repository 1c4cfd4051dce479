package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sentinelops/alerting-engine/pkg/logging"
)

// Dispatcher fans an accepted alert out to the notification channels named in
// its channel set. Delivery is best-effort and at-most-once per channel per
// alert: a channel failure is logged and does not block the other channels.
type Dispatcher struct {
	logger  *logging.StructuredLogger
	metrics *engineMetrics

	// mu guards the reconfigurable delivery state. The pipeline goroutine
	// reads it on every dispatch while the config watcher may swap it.
	mu       sync.RWMutex
	channels *ChannelRegistry
	settings NotificationSettings
	limiter  *rate.Limiter

	// One breaker per channel so a flapping transport stops consuming its
	// timeout budget on every alert. Breakers carry failure history, so
	// they survive reconfiguration.
	breakers map[ChannelType]*gobreaker.CircuitBreaker
}

// NewDispatcher creates a notification dispatcher over the given channel
// registry
func NewDispatcher(channels *ChannelRegistry, settings NotificationSettings, metrics *engineMetrics, logger *logging.StructuredLogger) *Dispatcher {
	d := &Dispatcher{
		logger:   logger.WithComponent("notification-dispatcher"),
		channels: channels,
		settings: settings,
		limiter:  newSendLimiter(settings),
		metrics:  metrics,
		breakers: make(map[ChannelType]*gobreaker.CircuitBreaker),
	}

	for _, ct := range []ChannelType{ChannelDashboard, ChannelEmail, ChannelSlack, ChannelTelegram, ChannelWebhook} {
		d.breakers[ct] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     string(ct),
			Interval: time.Minute,
			Timeout:  2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 5 && failureRatio >= 0.6
			},
		})
	}

	return d
}

// newSendLimiter builds the send pacer, or nil when pacing is disabled
func newSendLimiter(settings NotificationSettings) *rate.Limiter {
	if !settings.RateLimiting {
		return nil
	}
	perSecond := rate.Limit(float64(settings.MaxSendsPerMinute) / 60.0)
	return rate.NewLimiter(perSecond, settings.MaxSendsPerMinute)
}

// Reconfigure swaps the channel registry and notification settings, rebuilding
// the send pacer; used by live reconfiguration. Already-created alerts keep
// their channel-set snapshot, only delivery behavior changes.
func (d *Dispatcher) Reconfigure(channels *ChannelRegistry, settings NotificationSettings) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = channels
	d.settings = settings
	d.limiter = newSendLimiter(settings)
}

// Dispatch delivers the alert to every qualifying channel in its snapshot
func (d *Dispatcher) Dispatch(ctx context.Context, alert *Alert) {
	d.mu.RLock()
	channels := d.channels
	settings := d.settings
	limiter := d.limiter
	d.mu.RUnlock()

	summary := alert.Summary()

	for _, ct := range alert.NotificationChannels {
		channel := channels.Get(ct)
		if channel == nil || !channel.Enabled || channel.Transport == nil {
			continue
		}
		if !channel.Accepts(alert.Severity) {
			continue
		}
		if limiter != nil && !limiter.Allow() {
			d.logger.WarnWithContext("Notification dropped by send pacing",
				"channel", string(ct),
				"alert_id", alert.ID,
			)
			d.metrics.NotificationsFailed.WithLabelValues(string(ct)).Inc()
			continue
		}

		if err := d.send(ctx, channel, summary, settings.NotificationTimeout); err != nil {
			d.logger.ErrorWithContext("Notification delivery failed", err,
				"channel", string(ct),
				"alert_id", alert.ID,
				"severity", string(alert.Severity),
			)
			d.metrics.NotificationsFailed.WithLabelValues(string(ct)).Inc()
			continue
		}
		d.metrics.NotificationsSent.WithLabelValues(string(ct)).Inc()
	}
}

// send invokes the channel transport through its circuit breaker with a
// bounded timeout
func (d *Dispatcher) send(ctx context.Context, channel *Channel, summary AlertSummary, timeout time.Duration) error {
	_, err := d.breakers[channel.Type].Execute(func() (interface{}, error) {
		sendCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return nil, channel.Transport.Send(sendCtx, summary)
	})
	return err
}
