package alerting

import (
	"context"
	"sync"
)

// ChannelType identifies a notification channel
type ChannelType string

const (
	ChannelDashboard ChannelType = "dashboard"
	ChannelEmail     ChannelType = "email"
	ChannelSlack     ChannelType = "slack"
	ChannelTelegram  ChannelType = "telegram"
	ChannelWebhook   ChannelType = "webhook"
)

// Transport delivers an alert summary to an external destination. The context
// bounds the send; implementations must not block past its deadline.
type Transport interface {
	Send(ctx context.Context, summary AlertSummary) error
}

// Channel is a configured notification destination
type Channel struct {
	Type           ChannelType
	Enabled        bool
	SeverityFilter map[AlertSeverity]bool
	Transport      Transport
}

// Accepts reports whether the channel's severity filter admits the severity
func (c *Channel) Accepts(severity AlertSeverity) bool {
	if len(c.SeverityFilter) == 0 {
		return true
	}
	return c.SeverityFilter[severity]
}

// ChannelRegistry holds the configured notification channels. Enablement is
// derived once at construction and immutable thereafter; reconfiguration
// replaces the registry wholesale.
type ChannelRegistry struct {
	mu       sync.RWMutex
	channels map[ChannelType]*Channel
}

// NewChannelRegistry builds a registry from channel settings and the concrete
// transports. A channel registers as enabled only when its required delivery
// configuration is present. The dashboard channel is always present and
// accepts all severities.
func NewChannelRegistry(settings ChannelSettings, transports map[ChannelType]Transport) *ChannelRegistry {
	reg := &ChannelRegistry{channels: make(map[ChannelType]*Channel)}

	add := func(ct ChannelType, enabled bool) {
		reg.channels[ct] = &Channel{
			Type:           ct,
			Enabled:        enabled,
			SeverityFilter: severityFilterFor(ct, settings),
			Transport:      transports[ct],
		}
	}

	add(ChannelDashboard, true)
	add(ChannelEmail, settings.Email.Enabled && settings.Email.SMTPHost != "")
	add(ChannelSlack, settings.Slack.WebhookURL != "")
	add(ChannelTelegram, settings.Telegram.BotToken != "" && settings.Telegram.ChatID != "")
	add(ChannelWebhook, settings.Webhook.URL != "")

	return reg
}

// severityFilterFor builds a channel's severity filter from config. The
// dashboard filter is fixed to accept everything.
func severityFilterFor(ct ChannelType, settings ChannelSettings) map[AlertSeverity]bool {
	if ct == ChannelDashboard {
		return nil
	}
	configured, ok := settings.SeverityFilters[string(ct)]
	if !ok {
		return nil
	}
	filter := make(map[AlertSeverity]bool, len(configured))
	for _, s := range configured {
		filter[s] = true
	}
	return filter
}

// Get returns the channel for the given type, or nil if unknown
func (r *ChannelRegistry) Get(ct ChannelType) *Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channels[ct]
}

// EnabledChannels returns the types of all enabled channels
func (r *ChannelRegistry) EnabledChannels() []ChannelType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ChannelType, 0, len(r.channels))
	for ct, ch := range r.channels {
		if ch.Enabled {
			out = append(out, ct)
		}
	}
	return out
}

// ChannelsForSeverity returns the default channel set an alert of the given
// severity qualifies for. Collectors snapshot this set at alert creation.
func ChannelsForSeverity(severity AlertSeverity) []ChannelType {
	switch severity {
	case SeverityCritical:
		return []ChannelType{ChannelDashboard, ChannelEmail, ChannelSlack, ChannelTelegram}
	case SeverityHigh:
		return []ChannelType{ChannelDashboard, ChannelEmail, ChannelSlack}
	case SeverityMedium:
		return []ChannelType{ChannelDashboard, ChannelEmail}
	default:
		return []ChannelType{ChannelDashboard}
	}
}
