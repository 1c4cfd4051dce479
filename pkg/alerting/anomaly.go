package alerting

import (
	"math"
)

// AnomalyVerdict is the outcome of a statistical anomaly check
type AnomalyVerdict struct {
	Metric       string
	Severity     AlertSeverity
	Confidence   float64
	ZScore       float64
	CurrentValue float64
	Mean         float64
	StdDev       float64
	Deviation    float64
	SampleSize   int
}

// DetectAnomaly checks whether the last sample deviates significantly from the
// historical window formed by all preceding samples. It is a pure function:
// nil means "no anomaly" (including the insufficient-data and zero-variance
// cases, which are not errors).
//
// The detection threshold is sensitivity/2 (sensitivity 1-10, so the threshold
// ranges 0.5-5). Confidence is min(0.95, (z/t)*0.5) — a bounded heuristic, not
// a calibrated probability.
func DetectAnomaly(metric string, samples []float64, cfg AnomalyConfig) *AnomalyVerdict {
	if len(samples) < cfg.MinDataPoints {
		return nil
	}

	current := samples[len(samples)-1]
	history := samples[:len(samples)-1]

	mean, stddev := meanStdDev(history)
	if stddev == 0 {
		return nil
	}

	z := math.Abs(current-mean) / stddev
	threshold := float64(cfg.Sensitivity) / 2
	if z <= threshold {
		return nil
	}

	// Low severity is never emitted by this detector; it is reserved for
	// other alert sources.
	severity := SeverityMedium
	switch {
	case z > 2*threshold:
		severity = SeverityCritical
	case z > 1.5*threshold:
		severity = SeverityHigh
	}

	confidence := math.Min(0.95, (z/threshold)*0.5)

	return &AnomalyVerdict{
		Metric:       metric,
		Severity:     severity,
		Confidence:   confidence,
		ZScore:       z,
		CurrentValue: current,
		Mean:         mean,
		StdDev:       stddev,
		Deviation:    current - mean,
		SampleSize:   len(history),
	}
}

// meanStdDev computes the arithmetic mean and population standard deviation
func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sqSum float64
	for _, v := range values {
		d := v - mean
		sqSum += d * d
	}
	return mean, math.Sqrt(sqSum / float64(len(values)))
}
