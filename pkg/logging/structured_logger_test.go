package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   LogLevel
		want slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{"unknown", slog.LevelInfo},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseLevel(tc.in), string(tc.in))
	}
}

func TestWithComponent(t *testing.T) {
	base := NewStructuredLogger(Config{Level: LevelError, ServiceName: "alerting-engine"})
	scoped := base.WithComponent("dispatcher")

	assert.Equal(t, "dispatcher", scoped.component)
	assert.Empty(t, base.component, "scoping must not mutate the parent logger")
	assert.Equal(t, base.serviceName, scoped.serviceName)
}
