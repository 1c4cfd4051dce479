package alerting

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves canned rows per category to the collectors under test.
type fakeSource struct {
	rows map[string][]MetricRow
	err  error
}

func (s *fakeSource) Query(_ context.Context, category string, _ time.Duration) ([]MetricRow, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rows[category], nil
}

func rowsFromSeries(field string, values ...float64) []MetricRow {
	base := time.Now().Add(-time.Duration(len(values)) * time.Minute)
	rows := make([]MetricRow, 0, len(values))
	for i, v := range values {
		rows = append(rows, MetricRow{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Fields:    map[string]float64{field: v},
		})
	}
	return rows
}

func testRegistry(t *testing.T) *ThresholdRegistry {
	reg, err := NewThresholdRegistry(DefaultThresholds())
	require.NoError(t, err)
	return reg
}

func TestRealtimeCollector(t *testing.T) {
	cfg := AnomalyConfig{Sensitivity: 5, MinDataPoints: 10, ConfidenceThreshold: 0.5}

	t.Run("flags a spike as an anomaly alert", func(t *testing.T) {
		// Stable alternating baseline around 1000, then a large spike.
		values := make([]float64, 0, 21)
		for i := 0; i < 20; i++ {
			if i%2 == 0 {
				values = append(values, 950)
			} else {
				values = append(values, 1050)
			}
		}
		values = append(values, 5000)

		c := NewRealtimeCollector(&fakeSource{rows: map[string][]MetricRow{
			"realtime": rowsFromSeries("revenue", values...),
		}}, cfg, testLogger())

		alerts, err := c.Collect(context.Background())
		require.NoError(t, err)
		require.Len(t, alerts, 1)

		alert := alerts[0]
		assert.Equal(t, AlertTypeAnomaly, alert.Type)
		assert.Equal(t, "revenue", alert.Metric)
		assert.Equal(t, SeverityCritical, alert.Severity)
		assert.InDelta(t, 5000, alert.CurrentValue, 0.001)
		assert.True(t, alert.AutoResolve)
		assert.Contains(t, alert.Metadata, "z_score")
		assert.Contains(t, alert.Metadata, "sample_size")
	})

	t.Run("stable series produces no alerts", func(t *testing.T) {
		c := NewRealtimeCollector(&fakeSource{rows: map[string][]MetricRow{
			"realtime": rowsFromSeries("clicks", 100, 102, 98, 101, 99, 100, 103, 97, 100, 101, 99, 100),
		}}, cfg, testLogger())

		alerts, err := c.Collect(context.Background())
		require.NoError(t, err)
		assert.Empty(t, alerts)
	})

	t.Run("low-confidence verdicts are filtered", func(t *testing.T) {
		strict := cfg
		strict.ConfidenceThreshold = 0.99 // confidence caps at 0.95

		values := make([]float64, 0, 21)
		for i := 0; i < 20; i++ {
			if i%2 == 0 {
				values = append(values, 950)
			} else {
				values = append(values, 1050)
			}
		}
		values = append(values, 5000)

		c := NewRealtimeCollector(&fakeSource{rows: map[string][]MetricRow{
			"realtime": rowsFromSeries("revenue", values...),
		}}, strict, testLogger())

		alerts, err := c.Collect(context.Background())
		require.NoError(t, err)
		assert.Empty(t, alerts)
	})

	t.Run("source failure is returned", func(t *testing.T) {
		c := NewRealtimeCollector(&fakeSource{err: fmt.Errorf("connection refused")}, cfg, testLogger())
		_, err := c.Collect(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "query realtime metrics")
	})
}

func TestPerformanceCollector(t *testing.T) {
	t.Run("warning response time breach is medium", func(t *testing.T) {
		c := NewPerformanceCollector(&fakeSource{rows: map[string][]MetricRow{
			"performance": rowsFromSeries("response_time", 1200, 1400, 1300),
		}}, testRegistry(t), testLogger())

		alerts, err := c.Collect(context.Background())
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, SeverityMedium, alerts[0].Severity)
		assert.Equal(t, "response_time", alerts[0].Metric)
		assert.InDelta(t, 1300, alerts[0].CurrentValue, 0.001)
		assert.Equal(t, float64(1000), alerts[0].ThresholdValue)
	})

	t.Run("critical response time breach overrides the warning severity", func(t *testing.T) {
		c := NewPerformanceCollector(&fakeSource{rows: map[string][]MetricRow{
			"performance": rowsFromSeries("response_time", 4000, 5000),
		}}, testRegistry(t), testLogger())

		alerts, err := c.Collect(context.Background())
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, SeverityCritical, alerts[0].Severity)
		assert.Equal(t, float64(3000), alerts[0].ThresholdValue)
	})

	t.Run("error rate is the share of 5xx responses", func(t *testing.T) {
		// 2 of 10 responses are 5xx: 20% error rate, above critical (15%).
		codes := []float64{200, 200, 200, 500, 200, 200, 503, 200, 200, 200}
		c := NewPerformanceCollector(&fakeSource{rows: map[string][]MetricRow{
			"performance": rowsFromSeries("status_code", codes...),
		}}, testRegistry(t), testLogger())

		alerts, err := c.Collect(context.Background())
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, "error_rate", alerts[0].Metric)
		assert.Equal(t, SeverityCritical, alerts[0].Severity)
		assert.InDelta(t, 20.0, alerts[0].CurrentValue, 0.001)
	})

	t.Run("healthy metrics produce no alerts", func(t *testing.T) {
		rows := append(rowsFromSeries("response_time", 200, 250, 240),
			rowsFromSeries("status_code", 200, 200, 404)...)
		c := NewPerformanceCollector(&fakeSource{rows: map[string][]MetricRow{
			"performance": rows,
		}}, testRegistry(t), testLogger())

		alerts, err := c.Collect(context.Background())
		require.NoError(t, err)
		assert.Empty(t, alerts)
	})

	t.Run("empty window produces no alerts", func(t *testing.T) {
		c := NewPerformanceCollector(&fakeSource{}, testRegistry(t), testLogger())
		alerts, err := c.Collect(context.Background())
		require.NoError(t, err)
		assert.Empty(t, alerts)
	})
}

func TestBusinessCollector(t *testing.T) {
	t.Run("low revenue is a high-severity manual alert", func(t *testing.T) {
		c := NewBusinessCollector(&fakeSource{rows: map[string][]MetricRow{
			"business": rowsFromSeries("revenue", 300, 250, 200),
		}}, testRegistry(t), testLogger())

		alerts, err := c.Collect(context.Background())
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, AlertTypeBusiness, alerts[0].Type)
		assert.Equal(t, SeverityHigh, alerts[0].Severity)
		assert.InDelta(t, 750, alerts[0].CurrentValue, 0.001)
		assert.False(t, alerts[0].AutoResolve)
	})

	t.Run("revenue below critical minimum escalates", func(t *testing.T) {
		c := NewBusinessCollector(&fakeSource{rows: map[string][]MetricRow{
			"business": rowsFromSeries("revenue", 20, 30),
		}}, testRegistry(t), testLogger())

		alerts, err := c.Collect(context.Background())
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, SeverityCritical, alerts[0].Severity)
	})

	t.Run("low conversion rate uses the average", func(t *testing.T) {
		rows := append(rowsFromSeries("revenue", 5000),
			rowsFromSeries("conversion_rate", 0.6, 0.8, 0.7)...)
		c := NewBusinessCollector(&fakeSource{rows: map[string][]MetricRow{
			"business": rows,
		}}, testRegistry(t), testLogger())

		alerts, err := c.Collect(context.Background())
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, "conversion_rate", alerts[0].Metric)
		assert.Equal(t, SeverityMedium, alerts[0].Severity)
		assert.InDelta(t, 0.7, alerts[0].CurrentValue, 0.001)
	})
}

func TestWorkflowCollector(t *testing.T) {
	executions := func(failed, total int) []MetricRow {
		rows := make([]MetricRow, 0, total)
		for i := 0; i < total; i++ {
			v := 0.0
			if i < failed {
				v = 1.0
			}
			rows = append(rows, MetricRow{Timestamp: time.Now(), Fields: map[string]float64{"failed": v}})
		}
		return rows
	}

	cases := []struct {
		name     string
		failed   int
		total    int
		severity AlertSeverity
		alerting bool
	}{
		{"10 percent does not alert", 1, 10, "", false},
		{"20 percent is high", 2, 10, SeverityHigh, true},
		{"40 percent is critical", 4, 10, SeverityCritical, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewWorkflowCollector(&fakeSource{rows: map[string][]MetricRow{
				"workflow": executions(tc.failed, tc.total),
			}}, testLogger())

			alerts, err := c.Collect(context.Background())
			require.NoError(t, err)
			if !tc.alerting {
				assert.Empty(t, alerts)
				return
			}
			require.Len(t, alerts, 1)
			assert.Equal(t, AlertTypeWorkflow, alerts[0].Type)
			assert.Equal(t, tc.severity, alerts[0].Severity)
			assert.False(t, alerts[0].AutoResolve)
		})
	}

	t.Run("no executions means no alert", func(t *testing.T) {
		c := NewWorkflowCollector(&fakeSource{}, testLogger())
		alerts, err := c.Collect(context.Background())
		require.NoError(t, err)
		assert.Empty(t, alerts)
	})
}
