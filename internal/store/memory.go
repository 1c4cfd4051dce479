package store

import (
	"context"
	"sync"
	"time"

	"github.com/sentinelops/alerting-engine/pkg/alerting"
	"github.com/sentinelops/alerting-engine/pkg/alerting/notify"
)

// MemoryStore is an in-memory Store and NotificationWriter used by tests and
// storeless deployments
type MemoryStore struct {
	mu            sync.Mutex
	alerts        map[string]*alerting.Alert
	notifications []notify.NotificationRecord

	// UpsertErr, when set, is returned by every Upsert; used to exercise
	// persistence-failure handling.
	UpsertErr error
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{alerts: make(map[string]*alerting.Alert)}
}

func (s *MemoryStore) Upsert(_ context.Context, alert *alerting.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	copied := *alert
	s.alerts[alert.ID] = &copied
	return nil
}

func (s *MemoryStore) LoadUnresolved(_ context.Context) ([]*alerting.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*alerting.Alert
	for _, alert := range s.alerts {
		if !alert.Resolved {
			copied := *alert
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveNotification(_ context.Context, record notify.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, record)
	return nil
}

// Get returns the stored alert by id, or nil
func (s *MemoryStore) Get(id string) *alerting.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	if alert, ok := s.alerts[id]; ok {
		copied := *alert
		return &copied
	}
	return nil
}

// Notifications returns a snapshot of the recorded dashboard notifications
func (s *MemoryStore) Notifications() []notify.NotificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.NotificationRecord(nil), s.notifications...)
}

// MemoryMetricSource serves seeded metric rows per category
type MemoryMetricSource struct {
	mu   sync.Mutex
	data map[string][]alerting.MetricRow

	// QueryErr, when set, is returned by every Query; used to exercise
	// data-unavailable handling.
	QueryErr error
}

// NewMemoryMetricSource creates an empty in-memory metric source
func NewMemoryMetricSource() *MemoryMetricSource {
	return &MemoryMetricSource{data: make(map[string][]alerting.MetricRow)}
}

// Seed replaces the rows served for a category
func (s *MemoryMetricSource) Seed(category string, rows []alerting.MetricRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[category] = rows
}

// SeedSeries seeds one named series as evenly spaced observations ending now
func (s *MemoryMetricSource) SeedSeries(category, name string, values []float64) {
	rows := make([]alerting.MetricRow, len(values))
	now := time.Now()
	for i, v := range values {
		rows[i] = alerting.MetricRow{
			Timestamp: now.Add(-time.Duration(len(values)-i) * time.Minute),
			Fields:    map[string]float64{name: v},
		}
	}
	s.Seed(category, rows)
}

func (s *MemoryMetricSource) Query(_ context.Context, category string, _ time.Duration) ([]alerting.MetricRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}
	return append([]alerting.MetricRow(nil), s.data[category]...), nil
}
