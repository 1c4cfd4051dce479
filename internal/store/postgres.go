// Package store provides the persistence layer of the alerting engine: a
// Postgres-backed alert store and metric source, plus in-memory equivalents
// for tests and storeless deployments.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/sentinelops/alerting-engine/pkg/alerting"
	"github.com/sentinelops/alerting-engine/pkg/alerting/notify"
	"github.com/sentinelops/alerting-engine/pkg/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS alerts (
	id                    TEXT PRIMARY KEY,
	type                  TEXT NOT NULL,
	severity              TEXT NOT NULL,
	title                 TEXT NOT NULL DEFAULT '',
	message               TEXT NOT NULL DEFAULT '',
	source                TEXT NOT NULL DEFAULT '',
	metric                TEXT NOT NULL DEFAULT '',
	current_value         DOUBLE PRECISION NOT NULL DEFAULT 0,
	expected_value        DOUBLE PRECISION NOT NULL DEFAULT 0,
	threshold_value       DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence            DOUBLE PRECISION NOT NULL DEFAULT 0,
	acknowledged          BOOLEAN NOT NULL DEFAULT FALSE,
	resolved              BOOLEAN NOT NULL DEFAULT FALSE,
	auto_resolve          BOOLEAN NOT NULL DEFAULT FALSE,
	suggested_actions     TEXT[] NOT NULL DEFAULT '{}',
	notification_channels TEXT[] NOT NULL DEFAULT '{}',
	metadata              JSONB NOT NULL DEFAULT '{}',
	created_at            TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_resolved ON alerts (resolved);

CREATE TABLE IF NOT EXISTS notifications (
	id         BIGSERIAL PRIMARY KEY,
	alert_id   TEXT NOT NULL,
	type       TEXT NOT NULL,
	severity   TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
`

// PostgresStore persists alerts and dashboard notifications in Postgres
type PostgresStore struct {
	db     *sql.DB
	logger *logging.StructuredLogger
}

// NewPostgresStore opens a connection pool, verifies connectivity, and
// ensures the schema exists
func NewPostgresStore(ctx context.Context, dsn string, logger *logging.StructuredLogger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &PostgresStore{db: db, logger: logger.WithComponent("postgres-store")}, nil
}

// Close releases the connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Upsert inserts or updates one alert row keyed by id
func (s *PostgresStore) Upsert(ctx context.Context, alert *alerting.Alert) error {
	metadata, err := json.Marshal(alert.Metadata)
	if err != nil {
		return fmt.Errorf("marshal alert metadata: %w", err)
	}

	channels := make([]string, len(alert.NotificationChannels))
	for i, ch := range alert.NotificationChannels {
		channels[i] = string(ch)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (
			id, type, severity, title, message, source, metric,
			current_value, expected_value, threshold_value, confidence,
			acknowledged, resolved, auto_resolve,
			suggested_actions, notification_channels, metadata, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (id) DO UPDATE SET
			acknowledged = EXCLUDED.acknowledged,
			resolved     = EXCLUDED.resolved,
			message      = EXCLUDED.message,
			metadata     = EXCLUDED.metadata`,
		alert.ID, string(alert.Type), string(alert.Severity), alert.Title, alert.Message,
		alert.Source, alert.Metric,
		alert.CurrentValue, alert.ExpectedValue, alert.ThresholdValue, alert.Confidence,
		alert.Acknowledged, alert.Resolved, alert.AutoResolve,
		pq.Array(alert.SuggestedActions), pq.Array(channels), metadata, alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert alert %s: %w", alert.ID, err)
	}
	return nil
}

// LoadUnresolved returns all unresolved alerts; called once at startup to
// warm the engine's active set
func (s *PostgresStore) LoadUnresolved(ctx context.Context) ([]*alerting.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, severity, title, message, source, metric,
		       current_value, expected_value, threshold_value, confidence,
		       acknowledged, resolved, auto_resolve,
		       suggested_actions, notification_channels, metadata, created_at
		FROM alerts
		WHERE resolved = FALSE
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query unresolved alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*alerting.Alert
	for rows.Next() {
		var (
			alert    alerting.Alert
			actions  pq.StringArray
			channels pq.StringArray
			metadata []byte
		)
		if err := rows.Scan(
			&alert.ID, &alert.Type, &alert.Severity, &alert.Title, &alert.Message,
			&alert.Source, &alert.Metric,
			&alert.CurrentValue, &alert.ExpectedValue, &alert.ThresholdValue, &alert.Confidence,
			&alert.Acknowledged, &alert.Resolved, &alert.AutoResolve,
			&actions, &channels, &metadata, &alert.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}

		alert.SuggestedActions = []string(actions)
		alert.NotificationChannels = make([]alerting.ChannelType, len(channels))
		for i, ch := range channels {
			alert.NotificationChannels[i] = alerting.ChannelType(ch)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &alert.Metadata); err != nil {
				s.logger.WarnWithContext("Skipping malformed alert metadata", "alert_id", alert.ID)
				alert.Metadata = map[string]string{}
			}
		}
		alerts = append(alerts, &alert)
	}
	return alerts, rows.Err()
}

// SaveNotification writes one dashboard notification row
func (s *PostgresStore) SaveNotification(ctx context.Context, record notify.NotificationRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (alert_id, type, severity, title, message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		record.AlertID, record.Type, record.Severity, record.Title, record.Message, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification for alert %s: %w", record.AlertID, err)
	}
	return nil
}
