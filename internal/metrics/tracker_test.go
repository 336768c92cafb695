package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestTracker_MovingAverages(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(time.Hour, 100)
	tr.now = fixedClock(now)

	tr.Record(Sample{P95Ms: 100, ErrorRate: 0.01, ReadinessFailRate: 0.0, At: now.Add(-2 * time.Minute)})
	tr.Record(Sample{P95Ms: 300, ErrorRate: 0.03, ReadinessFailRate: 0.2, At: now.Add(-time.Minute)})

	avg := tr.MovingAverages()
	assert.Equal(t, 2, avg.Samples)
	assert.InDelta(t, 200.0, avg.P95Ms, 1e-9)
	assert.InDelta(t, 0.02, avg.ErrorRate, 1e-9)
	assert.InDelta(t, 0.1, avg.ReadinessFailRate, 1e-9)
}

func TestTracker_MovingAveragesExcludeOutsideWindow(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(time.Hour, 100)
	tr.now = fixedClock(now)

	tr.Record(Sample{P95Ms: 1000, At: now.Add(-30 * time.Minute)}) // outside 15m averaging window
	tr.Record(Sample{P95Ms: 100, At: now.Add(-time.Minute)})

	avg := tr.MovingAverages()
	assert.Equal(t, 1, avg.Samples)
	assert.InDelta(t, 100.0, avg.P95Ms, 1e-9)
}

func TestTracker_ZeroSamplesZeroAverages(t *testing.T) {
	tr := NewTracker(time.Hour, 100)
	avg := tr.MovingAverages()
	assert.Equal(t, 0, avg.Samples)
	assert.Zero(t, avg.P95Ms)
}

func TestTracker_CountBoundPrunesOldest(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(time.Hour, 3)
	tr.now = fixedClock(now)

	for i := 0; i < 5; i++ {
		tr.Record(Sample{P95Ms: float64(i), At: now.Add(time.Duration(i-10) * time.Second)})
	}
	assert.Equal(t, 3, tr.Len())
}

func TestTracker_WindowBoundPrunes(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(10*time.Minute, 100)
	tr.now = fixedClock(now)

	tr.Record(Sample{P95Ms: 1, At: now.Add(-20 * time.Minute)})
	tr.Record(Sample{P95Ms: 2, At: now.Add(-time.Minute)})

	assert.Equal(t, 1, tr.Len())
}

func TestTracker_ResampleBucketsAndZeroFills(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(time.Hour, 1000)
	tr.now = fixedClock(now)

	// Two samples in the same bucket, one bucket empty between them and now.
	tr.Record(Sample{P95Ms: 100, ErrorRate: 0.02, At: now.Add(-9 * time.Minute)})
	tr.Record(Sample{P95Ms: 300, ErrorRate: 0.04, At: now.Add(-9*time.Minute + 30*time.Second)})
	tr.Record(Sample{P95Ms: 50, At: now.Add(-time.Minute)})

	points := tr.Resample(10*time.Minute, time.Minute)
	assert.Len(t, points, 10)

	// Bucket 1 holds the averaged pair.
	assert.Equal(t, 2, points[1].Count)
	assert.InDelta(t, 200.0, points[1].P95Ms, 1e-9)
	assert.InDelta(t, 0.03, points[1].ErrorRate, 1e-9)

	// Empty buckets are zero-filled, not omitted.
	assert.Equal(t, 0, points[5].Count)
	assert.Zero(t, points[5].P95Ms)

	// Last bucket holds the recent sample.
	assert.Equal(t, 1, points[9].Count)
	assert.InDelta(t, 50.0, points[9].P95Ms, 1e-9)

	// Bucket starts are step-aligned from the window start.
	assert.Equal(t, now.Add(-10*time.Minute), points[0].Start)
	assert.Equal(t, now.Add(-time.Minute), points[9].Start)
}

func TestTracker_ResampleClampsPathologicalRatio(t *testing.T) {
	tr := NewTracker(time.Hour, 10)
	points := tr.Resample(24*time.Hour, time.Millisecond)
	assert.LessOrEqual(t, len(points), 1000)
}

func TestReadiness_FailRate(t *testing.T) {
	r := NewReadiness(15 * time.Minute)

	r.Record(true)
	r.Record(true)
	r.Record(true)
	r.Record(false)

	assert.InDelta(t, 0.25, r.FailRate(), 1e-9)
}

func TestReadiness_EmptyWindowIsZero(t *testing.T) {
	r := NewReadiness(15 * time.Minute)
	assert.Equal(t, 0.0, r.FailRate())
}

func TestReadiness_OldEventsPruned(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	r := NewReadiness(10 * time.Minute)
	r.now = fixedClock(now.Add(-20 * time.Minute))
	r.Record(false)

	r.now = fixedClock(now)
	r.Record(true)

	assert.Equal(t, 0.0, r.FailRate(), "failure outside window must not count")
}
