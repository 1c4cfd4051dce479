package alerting

import (
	"fmt"
	"sync"
	"time"
)

// ThresholdRegistry holds the per-metric warning/critical bounds shared by all
// source collectors. It is read-mostly; updates go through UpdateThreshold.
type ThresholdRegistry struct {
	mu         sync.RWMutex
	thresholds map[string]*AlertThreshold
}

// DefaultThresholds returns the built-in production thresholds
func DefaultThresholds() []*AlertThreshold {
	return []*AlertThreshold{
		{
			Metric:             "response_time",
			WarningMax:         f64(1000),
			CriticalMax:        f64(3000),
			Enabled:            true,
			AutoResolveTimeout: 30 * time.Minute,
		},
		{
			Metric:             "error_rate",
			WarningMax:         f64(5),
			CriticalMax:        f64(15),
			Enabled:            true,
			AutoResolveTimeout: 30 * time.Minute,
		},
		{
			Metric:             "revenue",
			WarningMin:         f64(1000),
			CriticalMin:        f64(100),
			Enabled:            true,
			AutoResolveTimeout: 24 * time.Hour,
		},
		{
			Metric:             "conversion_rate",
			WarningMin:         f64(1.0),
			CriticalMin:        f64(0.2),
			Enabled:            true,
			AutoResolveTimeout: 24 * time.Hour,
		},
	}
}

// NewThresholdRegistry builds a registry from the given thresholds, validating
// each entry. Invalid entries are rejected with an error naming the metric.
func NewThresholdRegistry(thresholds []*AlertThreshold) (*ThresholdRegistry, error) {
	reg := &ThresholdRegistry{thresholds: make(map[string]*AlertThreshold, len(thresholds))}
	for _, t := range thresholds {
		if err := validateThreshold(t); err != nil {
			return nil, fmt.Errorf("threshold %q: %w", t.Metric, err)
		}
		reg.thresholds[t.Metric] = t
	}
	return reg, nil
}

// validateThreshold checks that critical bounds, when present, are strictly
// more extreme than warning bounds on the same side
func validateThreshold(t *AlertThreshold) error {
	if t.Metric == "" {
		return fmt.Errorf("metric name is required")
	}
	if t.CriticalMax != nil && t.WarningMax != nil && *t.CriticalMax <= *t.WarningMax {
		return fmt.Errorf("critical_max %.2f must exceed warning_max %.2f", *t.CriticalMax, *t.WarningMax)
	}
	if t.CriticalMin != nil && t.WarningMin != nil && *t.CriticalMin >= *t.WarningMin {
		return fmt.Errorf("critical_min %.2f must be below warning_min %.2f", *t.CriticalMin, *t.WarningMin)
	}
	return nil
}

// Get returns the threshold for a metric, or nil if none is configured or the
// threshold is disabled
func (r *ThresholdRegistry) Get(metric string) *AlertThreshold {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.thresholds[metric]
	if !ok || !t.Enabled {
		return nil
	}
	copied := *t
	return &copied
}

// AutoResolveTimeout returns the configured auto-resolve timeout for a metric,
// or the given fallback when the metric has no threshold
func (r *ThresholdRegistry) AutoResolveTimeout(metric string, fallback time.Duration) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.thresholds[metric]; ok && t.AutoResolveTimeout > 0 {
		return t.AutoResolveTimeout
	}
	return fallback
}

// Update merges a partial update into an existing threshold. Unknown metrics
// are a deliberate no-op (update-existing-only, not an upsert); the returned
// bool reports whether a threshold was updated.
func (r *ThresholdRegistry) Update(metric string, update ThresholdUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.thresholds[metric]
	if !ok {
		return false, nil
	}

	merged := *t
	if update.WarningMin != nil {
		merged.WarningMin = update.WarningMin
	}
	if update.WarningMax != nil {
		merged.WarningMax = update.WarningMax
	}
	if update.CriticalMin != nil {
		merged.CriticalMin = update.CriticalMin
	}
	if update.CriticalMax != nil {
		merged.CriticalMax = update.CriticalMax
	}
	if update.Enabled != nil {
		merged.Enabled = *update.Enabled
	}
	if update.AutoResolveTimeout != nil {
		merged.AutoResolveTimeout = *update.AutoResolveTimeout
	}

	if err := validateThreshold(&merged); err != nil {
		return false, fmt.Errorf("threshold %q: %w", metric, err)
	}

	r.thresholds[metric] = &merged
	return true, nil
}

// Metrics returns the names of all registered metrics
func (r *ThresholdRegistry) Metrics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.thresholds))
	for name := range r.thresholds {
		names = append(names, name)
	}
	return names
}

func f64(v float64) *float64 { return &v }
