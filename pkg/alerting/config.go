package alerting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v2"

	"github.com/sentinelops/alerting-engine/pkg/logging"
)

// EngineConfig is the process-wide configuration for the alerting engine.
// It is loaded once at construction and may be live-reloaded through
// Engine.Reconfigure.
type EngineConfig struct {
	Enabled                   bool          `yaml:"enabled"`
	UpdateInterval            time.Duration `yaml:"update_interval"`
	MaxAlertsPerHour          int           `yaml:"max_alerts_per_hour"`
	AutoAcknowledgeDuplicates bool          `yaml:"auto_acknowledge_duplicates"`
	HistoryLimit              int           `yaml:"history_limit"`
	QueryTimeout              time.Duration `yaml:"query_timeout"`

	AnomalyDetection     AnomalyConfig        `yaml:"anomaly_detection"`
	NotificationSettings NotificationSettings `yaml:"notification_settings"`
	Channels             ChannelSettings      `yaml:"channels"`
}

// AnomalyConfig tunes the statistical anomaly detector
type AnomalyConfig struct {
	// Sensitivity ranges 1-10; the detection threshold is sensitivity/2.
	Sensitivity         int     `yaml:"sensitivity"`
	MinDataPoints       int     `yaml:"min_data_points"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// NotificationSettings tunes notification delivery behavior
type NotificationSettings struct {
	RateLimiting        bool          `yaml:"rate_limiting"`
	BatchNotifications  bool          `yaml:"batch_notifications"`
	EscalationEnabled   bool          `yaml:"escalation_enabled"`
	EscalationTimeout   time.Duration `yaml:"escalation_timeout"`
	NotificationTimeout time.Duration `yaml:"notification_timeout"`
	MaxSendsPerMinute   int           `yaml:"max_sends_per_minute"`
}

// duration parses yaml duration values in time.ParseDuration form ("30s",
// "5m") as well as integer nanoseconds
type duration time.Duration

func (d *duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = duration(parsed)
		return nil
	}
	var n int64
	if err := unmarshal(&n); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = duration(n)
	return nil
}

// UnmarshalYAML decodes the config with human-readable duration fields,
// leaving fields absent from the document at their current values
func (c *EngineConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	raw := struct {
		Enabled                   bool                 `yaml:"enabled"`
		UpdateInterval            duration             `yaml:"update_interval"`
		MaxAlertsPerHour          int                  `yaml:"max_alerts_per_hour"`
		AutoAcknowledgeDuplicates bool                 `yaml:"auto_acknowledge_duplicates"`
		HistoryLimit              int                  `yaml:"history_limit"`
		QueryTimeout              duration             `yaml:"query_timeout"`
		AnomalyDetection          AnomalyConfig        `yaml:"anomaly_detection"`
		NotificationSettings      NotificationSettings `yaml:"notification_settings"`
		Channels                  ChannelSettings      `yaml:"channels"`
	}{
		Enabled:                   c.Enabled,
		UpdateInterval:            duration(c.UpdateInterval),
		MaxAlertsPerHour:          c.MaxAlertsPerHour,
		AutoAcknowledgeDuplicates: c.AutoAcknowledgeDuplicates,
		HistoryLimit:              c.HistoryLimit,
		QueryTimeout:              duration(c.QueryTimeout),
		AnomalyDetection:          c.AnomalyDetection,
		NotificationSettings:      c.NotificationSettings,
		Channels:                  c.Channels,
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}

	c.Enabled = raw.Enabled
	c.UpdateInterval = time.Duration(raw.UpdateInterval)
	c.MaxAlertsPerHour = raw.MaxAlertsPerHour
	c.AutoAcknowledgeDuplicates = raw.AutoAcknowledgeDuplicates
	c.HistoryLimit = raw.HistoryLimit
	c.QueryTimeout = time.Duration(raw.QueryTimeout)
	c.AnomalyDetection = raw.AnomalyDetection
	c.NotificationSettings = raw.NotificationSettings
	c.Channels = raw.Channels
	return nil
}

// UnmarshalYAML decodes notification settings with human-readable duration
// fields
func (s *NotificationSettings) UnmarshalYAML(unmarshal func(interface{}) error) error {
	raw := struct {
		RateLimiting        bool     `yaml:"rate_limiting"`
		BatchNotifications  bool     `yaml:"batch_notifications"`
		EscalationEnabled   bool     `yaml:"escalation_enabled"`
		EscalationTimeout   duration `yaml:"escalation_timeout"`
		NotificationTimeout duration `yaml:"notification_timeout"`
		MaxSendsPerMinute   int      `yaml:"max_sends_per_minute"`
	}{
		RateLimiting:        s.RateLimiting,
		BatchNotifications:  s.BatchNotifications,
		EscalationEnabled:   s.EscalationEnabled,
		EscalationTimeout:   duration(s.EscalationTimeout),
		NotificationTimeout: duration(s.NotificationTimeout),
		MaxSendsPerMinute:   s.MaxSendsPerMinute,
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}

	s.RateLimiting = raw.RateLimiting
	s.BatchNotifications = raw.BatchNotifications
	s.EscalationEnabled = raw.EscalationEnabled
	s.EscalationTimeout = time.Duration(raw.EscalationTimeout)
	s.NotificationTimeout = time.Duration(raw.NotificationTimeout)
	s.MaxSendsPerMinute = raw.MaxSendsPerMinute
	return nil
}

// ChannelSettings holds delivery configuration for each notification channel.
// Presence of the required credentials determines whether a channel registers
// as enabled at startup; the dashboard channel is always present.
type ChannelSettings struct {
	Email    EmailSettings    `yaml:"email"`
	Slack    SlackSettings    `yaml:"slack"`
	Telegram TelegramSettings `yaml:"telegram"`
	Webhook  WebhookSettings  `yaml:"webhook"`

	// SeverityFilters restricts which severities each channel accepts.
	// An absent entry means the channel accepts all severities.
	SeverityFilters map[string][]AlertSeverity `yaml:"severity_filters"`
}

// EmailSettings configures the SMTP notification channel
type EmailSettings struct {
	Enabled  bool     `yaml:"enabled"`
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// SlackSettings configures the Slack incoming-webhook channel
type SlackSettings struct {
	WebhookURL string `yaml:"webhook_url"`
}

// TelegramSettings configures the Telegram bot channel
type TelegramSettings struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// WebhookSettings configures the generic HTTP webhook channel
type WebhookSettings struct {
	URL string `yaml:"url"`
}

// DefaultEngineConfig returns production-ready defaults
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Enabled:                   true,
		UpdateInterval:            30 * time.Second,
		MaxAlertsPerHour:          10,
		AutoAcknowledgeDuplicates: false,
		HistoryLimit:              1000,
		QueryTimeout:              10 * time.Second,
		AnomalyDetection: AnomalyConfig{
			Sensitivity:         5,
			MinDataPoints:       10,
			ConfidenceThreshold: 0.5,
		},
		NotificationSettings: NotificationSettings{
			RateLimiting:        true,
			BatchNotifications:  false,
			EscalationEnabled:   false,
			EscalationTimeout:   30 * time.Minute,
			NotificationTimeout: 30 * time.Second,
			MaxSendsPerMinute:   60,
		},
	}
}

// LoadEngineConfig reads a YAML config file merged over defaults and applies
// environment overrides. A missing or malformed file falls back to defaults
// with the parse error returned for logging; startup never fails on bad
// configuration.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	cfg := DefaultEngineConfig()
	var loadErr error

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("read config %s: %w", path, err)
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			cfg = DefaultEngineConfig()
			loadErr = fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	return cfg, loadErr
}

// applyEnv overlays channel credentials from the environment. Env values take
// precedence over the config file.
func (c *EngineConfig) applyEnv() {
	if v := os.Getenv("ALERT_SMTP_HOST"); v != "" {
		c.Channels.Email.SMTPHost = v
		c.Channels.Email.Enabled = true
	}
	if v := os.Getenv("ALERT_SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Channels.Email.SMTPPort = port
		}
	}
	if v := os.Getenv("ALERT_SMTP_FROM"); v != "" {
		c.Channels.Email.From = v
	}
	if v := os.Getenv("ALERT_SLACK_WEBHOOK_URL"); v != "" {
		c.Channels.Slack.WebhookURL = v
	}
	if v := os.Getenv("ALERT_TELEGRAM_BOT_TOKEN"); v != "" {
		c.Channels.Telegram.BotToken = v
	}
	if v := os.Getenv("ALERT_TELEGRAM_CHAT_ID"); v != "" {
		c.Channels.Telegram.ChatID = v
	}
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		c.Channels.Webhook.URL = v
	}
}

// normalize clamps out-of-range values to safe bounds instead of rejecting
// the configuration
func (c *EngineConfig) normalize() {
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = 30 * time.Second
	}
	if c.MaxAlertsPerHour <= 0 {
		c.MaxAlertsPerHour = 10
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 1000
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 10 * time.Second
	}
	if c.AnomalyDetection.Sensitivity < 1 {
		c.AnomalyDetection.Sensitivity = 1
	}
	if c.AnomalyDetection.Sensitivity > 10 {
		c.AnomalyDetection.Sensitivity = 10
	}
	if c.AnomalyDetection.MinDataPoints < 2 {
		c.AnomalyDetection.MinDataPoints = 2
	}
	if c.AnomalyDetection.ConfidenceThreshold <= 0 || c.AnomalyDetection.ConfidenceThreshold > 1 {
		c.AnomalyDetection.ConfidenceThreshold = 0.5
	}
	if c.NotificationSettings.EscalationTimeout <= 0 {
		c.NotificationSettings.EscalationTimeout = 30 * time.Minute
	}
	if c.NotificationSettings.NotificationTimeout <= 0 {
		c.NotificationSettings.NotificationTimeout = 30 * time.Second
	}
	if c.NotificationSettings.MaxSendsPerMinute <= 0 {
		c.NotificationSettings.MaxSendsPerMinute = 60
	}
}

// WatchConfig watches the config file and invokes apply with a freshly loaded
// configuration on every write. It returns when ctx is canceled. Reload
// failures are logged and the previous configuration stays in effect.
func WatchConfig(ctx context.Context, path string, logger *logging.StructuredLogger, apply func(*EngineConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file atomically are
	// still observed.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, loadErr := LoadEngineConfig(path)
			if loadErr != nil {
				logger.ErrorWithContext("Config reload failed, keeping previous configuration", loadErr,
					"path", path,
				)
				continue
			}
			logger.InfoWithContext("Config reloaded", "path", path)
			apply(cfg)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.ErrorWithContext("Config watcher error", watchErr)
		}
	}
}
