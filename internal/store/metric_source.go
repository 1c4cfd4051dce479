package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sentinelops/alerting-engine/pkg/alerting"
)

// PostgresMetricSource reads raw metric observations from the metric_samples
// time-series table. Each row carries one named numeric field.
type PostgresMetricSource struct {
	store *PostgresStore
}

// NewPostgresMetricSource creates a metric source backed by the same database
// as the alert store
func NewPostgresMetricSource(store *PostgresStore) *PostgresMetricSource {
	return &PostgresMetricSource{store: store}
}

// Query returns the observations for a metric category within the lookback
// window, oldest first
func (s *PostgresMetricSource) Query(ctx context.Context, category string, window time.Duration) ([]alerting.MetricRow, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT ts, name, value
		FROM metric_samples
		WHERE category = $1 AND ts >= NOW() - make_interval(secs => $2)
		ORDER BY ts`,
		category, window.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("query %s metric samples: %w", category, err)
	}
	defer rows.Close()

	var out []alerting.MetricRow
	for rows.Next() {
		var (
			ts    time.Time
			name  string
			value float64
		)
		if err := rows.Scan(&ts, &name, &value); err != nil {
			return nil, fmt.Errorf("scan metric sample: %w", err)
		}
		out = append(out, alerting.MetricRow{
			Timestamp: ts,
			Fields:    map[string]float64{name: value},
		})
	}
	return out, rows.Err()
}
