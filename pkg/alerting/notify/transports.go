package notify

import (
	"github.com/sentinelops/alerting-engine/pkg/alerting"
)

// BuildTransports constructs the transport for every channel type from the
// channel settings. Channels without configuration still get a transport; the
// registry's enabled flag decides whether it is ever invoked.
func BuildTransports(settings alerting.ChannelSettings, writer NotificationWriter) map[alerting.ChannelType]alerting.Transport {
	return map[alerting.ChannelType]alerting.Transport{
		alerting.ChannelDashboard: NewDashboardTransport(writer),
		alerting.ChannelEmail:     NewEmailTransport(settings.Email),
		alerting.ChannelSlack:     NewSlackTransport(settings.Slack),
		alerting.ChannelTelegram:  NewTelegramTransport(settings.Telegram),
		alerting.ChannelWebhook:   NewWebhookTransport(settings.Webhook),
	}
}
