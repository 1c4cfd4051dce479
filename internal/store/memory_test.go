package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/alerting-engine/pkg/alerting"
	"github.com/sentinelops/alerting-engine/pkg/alerting/notify"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("upsert stores a copy", func(t *testing.T) {
		s := NewMemoryStore()
		alert := &alerting.Alert{ID: "a1", Type: alerting.AlertTypePerformance, Severity: alerting.SeverityHigh}
		require.NoError(t, s.Upsert(ctx, alert))

		alert.Resolved = true
		got := s.Get("a1")
		require.NotNil(t, got)
		assert.False(t, got.Resolved, "caller mutation must not leak into the store")
	})

	t.Run("load unresolved skips resolved alerts", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Upsert(ctx, &alerting.Alert{ID: "open"}))
		require.NoError(t, s.Upsert(ctx, &alerting.Alert{ID: "closed", Resolved: true}))

		alerts, err := s.LoadUnresolved(ctx)
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, "open", alerts[0].ID)
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Upsert(ctx, &alerting.Alert{ID: "a1", Acknowledged: false}))
		require.NoError(t, s.Upsert(ctx, &alerting.Alert{ID: "a1", Acknowledged: true}))
		assert.True(t, s.Get("a1").Acknowledged)
	})

	t.Run("injected error is returned", func(t *testing.T) {
		s := NewMemoryStore()
		s.UpsertErr = fmt.Errorf("store offline")
		require.Error(t, s.Upsert(ctx, &alerting.Alert{ID: "a1"}))
		assert.Nil(t, s.Get("a1"))
	})

	t.Run("records notifications", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.SaveNotification(ctx, notify.NotificationRecord{AlertID: "a1", Severity: "critical"}))
		records := s.Notifications()
		require.Len(t, records, 1)
		assert.Equal(t, "a1", records[0].AlertID)
	})
}

func TestMemoryMetricSource(t *testing.T) {
	ctx := context.Background()

	t.Run("seeded series round-trips in order", func(t *testing.T) {
		s := NewMemoryMetricSource()
		s.SeedSeries("realtime", "revenue", []float64{10, 20, 30})

		rows, err := s.Query(ctx, "realtime", time.Hour)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, 10.0, rows[0].Fields["revenue"])
		assert.Equal(t, 30.0, rows[2].Fields["revenue"])
		assert.True(t, rows[0].Timestamp.Before(rows[1].Timestamp))
	})

	t.Run("unknown category returns no rows", func(t *testing.T) {
		s := NewMemoryMetricSource()
		rows, err := s.Query(ctx, "performance", time.Hour)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("injected error is returned", func(t *testing.T) {
		s := NewMemoryMetricSource()
		s.QueryErr = fmt.Errorf("connection reset")
		_, err := s.Query(ctx, "realtime", time.Hour)
		require.Error(t, err)
	})
}
