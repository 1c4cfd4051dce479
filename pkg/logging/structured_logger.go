package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// StructuredLogger provides structured logging with service and component context
type StructuredLogger struct {
	*slog.Logger
	serviceName    string
	serviceVersion string
	environment    string
	component      string
}

// Config holds configuration for the structured logger
type Config struct {
	Level       LogLevel `json:"level"`
	Format      string   `json:"format"` // "json" or "text"
	ServiceName string   `json:"service_name"`
	Version     string   `json:"version"`
	Environment string   `json:"environment"`
	AddSource   bool     `json:"add_source"`
}

// NewStructuredLogger creates a new structured logger instance
func NewStructuredLogger(config Config) *StructuredLogger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	switch strings.ToLower(config.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return &StructuredLogger{
		Logger:         slog.New(handler),
		serviceName:    config.ServiceName,
		serviceVersion: config.Version,
		environment:    config.Environment,
	}
}

// WithComponent creates a logger scoped to a specific component
func (sl *StructuredLogger) WithComponent(component string) *StructuredLogger {
	return &StructuredLogger{
		Logger:         sl.Logger,
		serviceName:    sl.serviceName,
		serviceVersion: sl.serviceVersion,
		environment:    sl.environment,
		component:      component,
	}
}

// InfoWithContext logs an info message with full service context
func (sl *StructuredLogger) InfoWithContext(msg string, args ...any) {
	sl.Logger.Info(msg, sl.withServiceContext(args...)...)
}

// WarnWithContext logs a warning message with full service context
func (sl *StructuredLogger) WarnWithContext(msg string, args ...any) {
	sl.Logger.Warn(msg, sl.withServiceContext(args...)...)
}

// DebugWithContext logs a debug message with full service context
func (sl *StructuredLogger) DebugWithContext(msg string, args ...any) {
	sl.Logger.Debug(msg, sl.withServiceContext(args...)...)
}

// ErrorWithContext logs an error message with full service context
func (sl *StructuredLogger) ErrorWithContext(msg string, err error, args ...any) {
	attrs := sl.withServiceContext(args...)
	if err != nil {
		attrs = append(attrs, "error", err.Error(), "error_type", fmt.Sprintf("%T", err))
	}
	sl.Logger.Error(msg, attrs...)
}

// LogHTTPRequest logs HTTP request details at a level derived from the status code
func (sl *StructuredLogger) LogHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	level := slog.LevelInfo
	if statusCode >= 400 {
		level = slog.LevelWarn
	}
	if statusCode >= 500 {
		level = slog.LevelError
	}

	sl.Logger.Log(context.Background(), level, "HTTP request processed",
		sl.withServiceContext(
			"http_method", method,
			"http_path", path,
			"http_status", statusCode,
			"http_duration_ms", duration.Milliseconds(),
		)...,
	)
}

// withServiceContext prepends service identity attributes to the given args
func (sl *StructuredLogger) withServiceContext(args ...any) []any {
	attrs := make([]any, 0, len(args)+8)
	if sl.serviceName != "" {
		attrs = append(attrs, "service", sl.serviceName)
	}
	if sl.serviceVersion != "" {
		attrs = append(attrs, "version", sl.serviceVersion)
	}
	if sl.environment != "" {
		attrs = append(attrs, "environment", sl.environment)
	}
	if sl.component != "" {
		attrs = append(attrs, "component", sl.component)
	}
	return append(attrs, args...)
}

// parseLevel converts a LogLevel to the corresponding slog level
func parseLevel(level LogLevel) slog.Level {
	switch LogLevel(strings.ToLower(string(level))) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
