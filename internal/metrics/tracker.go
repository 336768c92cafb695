// Package metrics holds the in-process SLO time-series store consumed by
// dashboards, alerting, and the canary gate, plus the prometheus collectors
// exported at /metrics. All trackers are single-lock shared state: prune and
// append happen under one mutex because they are compound operations.
package metrics

import (
	"sync"
	"time"
)

// Default retention bounds for the raw sample ring.
const (
	DefaultRetention  = time.Hour
	DefaultMaxSamples = 10000

	// DefaultAveragingWindow is the fixed window for moving averages.
	DefaultAveragingWindow = 15 * time.Minute
)

// Sample is one recorded SLO observation.
type Sample struct {
	P95Ms             float64   `json:"p95_ms"`
	ErrorRate         float64   `json:"error_rate"`
	ReadinessFailRate float64   `json:"readiness_fail_rate"`
	At                time.Time `json:"at"`
}

// Averages are fixed-window moving averages over the recorded samples.
type Averages struct {
	P95Ms             float64 `json:"p95_ms_ma"`
	ErrorRate         float64 `json:"error_rate_ma"`
	ReadinessFailRate float64 `json:"readiness_fail_ma"`
	Samples           int     `json:"samples"`
}

// TrendPoint is one resampled bucket of the raw series. Empty buckets are
// zero-filled with Count == 0.
type TrendPoint struct {
	Start             time.Time `json:"start"`
	P95Ms             float64   `json:"p95_ms"`
	ErrorRate         float64   `json:"error_rate"`
	ReadinessFailRate float64   `json:"readiness_fail_rate"`
	Count             int       `json:"count"`
}

// Tracker stores SLO samples in a window- and count-bounded buffer.
// Whichever bound is tighter prunes first; pruning happens lazily on every
// read and write.
type Tracker struct {
	mu         sync.Mutex
	retention  time.Duration
	maxSamples int
	avgWindow  time.Duration
	samples    []Sample

	now func() time.Time // injectable clock for tests
}

// NewTracker creates a tracker with the given retention window and sample cap.
// Non-positive arguments fall back to defaults.
func NewTracker(retention time.Duration, maxSamples int) *Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Tracker{
		retention:  retention,
		maxSamples: maxSamples,
		avgWindow:  DefaultAveragingWindow,
		samples:    make([]Sample, 0, 64),
		now:        time.Now,
	}
}

// Record appends a sample. A zero At is stamped with the current time.
func (t *Tracker) Record(s Sample) {
	if s.At.IsZero() {
		s.At = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(t.now())
	t.samples = append(t.samples, s)
	if len(t.samples) > t.maxSamples {
		t.samples = t.samples[len(t.samples)-t.maxSamples:]
	}
}

// MovingAverages returns the fixed-window averages over the last
// DefaultAveragingWindow of samples. Zero samples yield zero averages.
func (t *Tracker) MovingAverages() Averages {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.pruneLocked(now)

	cutoff := now.Add(-t.avgWindow)
	var out Averages
	for _, s := range t.samples {
		if s.At.Before(cutoff) {
			continue
		}
		out.P95Ms += s.P95Ms
		out.ErrorRate += s.ErrorRate
		out.ReadinessFailRate += s.ReadinessFailRate
		out.Samples++
	}
	if out.Samples > 0 {
		n := float64(out.Samples)
		out.P95Ms /= n
		out.ErrorRate /= n
		out.ReadinessFailRate /= n
	}
	return out
}

// Resample buckets the raw series into step-sized buckets over the trailing
// window, averaging within each bucket and zero-filling empty ones. Runs in
// a single linear pass over the raw samples regardless of window/step ratio.
func (t *Tracker) Resample(window, step time.Duration) []TrendPoint {
	if step <= 0 {
		step = time.Minute
	}
	if window < step {
		window = step
	}
	// Bound the series size against pathological window/step combinations.
	buckets := int(window / step)
	if buckets > 1000 {
		buckets = 1000
		window = step * time.Duration(buckets)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.pruneLocked(now)

	start := now.Add(-window)
	points := make([]TrendPoint, buckets)
	for i := range points {
		points[i].Start = start.Add(time.Duration(i) * step)
	}

	for _, s := range t.samples {
		if s.At.Before(start) {
			continue
		}
		idx := int(s.At.Sub(start) / step)
		if idx < 0 || idx >= buckets {
			continue
		}
		points[idx].P95Ms += s.P95Ms
		points[idx].ErrorRate += s.ErrorRate
		points[idx].ReadinessFailRate += s.ReadinessFailRate
		points[idx].Count++
	}

	for i := range points {
		if points[i].Count > 0 {
			n := float64(points[i].Count)
			points[i].P95Ms /= n
			points[i].ErrorRate /= n
			points[i].ReadinessFailRate /= n
		}
	}
	return points
}

// Len returns the number of retained samples after pruning.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(t.now())
	return len(t.samples)
}

// pruneLocked drops samples older than the retention window. Caller holds mu.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	i := 0
	for i < len(t.samples) && t.samples[i].At.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.samples = t.samples[i:]
	}
}
