package canary_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canaryops/sentinel/internal/alerting"
	"github.com/canaryops/sentinel/internal/canary"
	"github.com/canaryops/sentinel/internal/metrics"
	"github.com/canaryops/sentinel/internal/verify"
)

type staticIntegrity struct {
	result verify.Result
}

func (s staticIntegrity) Latest(context.Context) verify.Result { return s.result }

type panickingIntegrity struct{}

func (panickingIntegrity) Latest(context.Context) verify.Result { panic("boom") }

func verifiedResult() verify.Result {
	return verify.Result{
		Status:            verify.StatusVerified,
		IntegrityVerified: true,
		CheckedAt:         time.Now().UTC(),
	}
}

func testThresholds() canary.Thresholds {
	return canary.Thresholds{
		LatencyP95Ms:      500,
		ErrorRate:         0.05,
		ReadinessFailRate: 0.10,
	}
}

func newTestEmitter() *alerting.Emitter {
	return alerting.NewEmitter(
		alerting.NewDedupeCache(time.Minute, 100),
		alerting.NewSampler(100),
		alerting.NewFailureTracker(),
	)
}

func newGate(integrity canary.IntegritySource) (*canary.Gate, *metrics.Tracker, *metrics.Readiness) {
	tracker := metrics.NewTracker(time.Hour, 1000)
	readiness := metrics.NewReadiness(15 * time.Minute)
	gate := canary.New(tracker, readiness, integrity, newTestEmitter(), testThresholds())
	return gate, tracker, readiness
}

func TestGate_ProceedWhenHealthy(t *testing.T) {
	gate, tracker, readiness := newGate(staticIntegrity{verifiedResult()})
	tracker.Record(metrics.Sample{P95Ms: 120, ErrorRate: 0.001})
	readiness.Record(true)

	d := gate.Evaluate(context.Background(), nil)

	assert.Equal(t, canary.Proceed, d.Recommendation)
	assert.Empty(t, d.FailureReasons)
	assert.Empty(t, d.Runbooks)
	assert.Equal(t, verify.StatusVerified, d.Integrity.Status)
	assert.Equal(t, 1, d.Observed.Samples)
	assert.False(t, d.EvaluatedAt.IsZero())
}

func TestGate_LatencyBreachRollsBack(t *testing.T) {
	gate, tracker, _ := newGate(staticIntegrity{verifiedResult()})
	tracker.Record(metrics.Sample{P95Ms: 900, ErrorRate: 0.001})

	d := gate.Evaluate(context.Background(), nil)

	assert.Equal(t, canary.Rollback, d.Recommendation)
	require.Len(t, d.FailureReasons, 1)
	assert.Contains(t, d.FailureReasons[0], "latency p95 900.0ms exceeds threshold 500.0ms")
	require.NotEmpty(t, d.Runbooks, "each failure reason maps to a runbook link")
	assert.Contains(t, d.Runbooks[0].URL, "runbooks.canaryops.dev")
}

func TestGate_IntegrityFailureRollsBack(t *testing.T) {
	gate, tracker, _ := newGate(staticIntegrity{verify.Result{
		Status:  verify.StatusCorrupted,
		Summary: verify.Summary{ModifiedCount: 2, MissingCount: 1},
	}})
	tracker.Record(metrics.Sample{P95Ms: 100})

	d := gate.Evaluate(context.Background(), nil)

	assert.Equal(t, canary.Rollback, d.Recommendation)
	require.Len(t, d.FailureReasons, 1)
	assert.Contains(t, d.FailureReasons[0], "integrity status corrupted")
	assert.Contains(t, d.FailureReasons[0], "2 modified, 1 missing, 0 new")
	assert.Equal(t, 2, d.Integrity.ModifiedCount)
}

func TestGate_MultipleBreachesCollectAllReasons(t *testing.T) {
	gate, tracker, readiness := newGate(staticIntegrity{verifiedResult()})
	tracker.Record(metrics.Sample{P95Ms: 900, ErrorRate: 0.5})
	readiness.Record(false)

	d := gate.Evaluate(context.Background(), nil)

	assert.Equal(t, canary.Rollback, d.Recommendation)
	assert.Len(t, d.FailureReasons, 3)
}

func TestGate_OverridesReplacePositiveFieldsOnly(t *testing.T) {
	gate, tracker, _ := newGate(staticIntegrity{verifiedResult()})
	tracker.Record(metrics.Sample{P95Ms: 900})

	// Raising only the latency threshold clears the breach; zero-valued
	// override fields keep the defaults.
	d := gate.Evaluate(context.Background(), &canary.Thresholds{LatencyP95Ms: 1000})

	assert.Equal(t, canary.Proceed, d.Recommendation)
	assert.Equal(t, 1000.0, d.Thresholds.LatencyP95Ms)
	assert.Equal(t, 0.05, d.Thresholds.ErrorRate)
}

func TestGate_FailsClosedOnPanic(t *testing.T) {
	gate, tracker, _ := newGate(panickingIntegrity{})
	tracker.Record(metrics.Sample{P95Ms: 100})

	d := gate.Evaluate(context.Background(), nil)

	assert.Equal(t, canary.Rollback, d.Recommendation)
	require.Len(t, d.FailureReasons, 1)
	assert.Contains(t, d.FailureReasons[0], "internal error")
	assert.NotEmpty(t, d.Runbooks)
}

func TestGate_NoMetricsNoIntegrityBaselineStillRollsBack(t *testing.T) {
	// Fresh host: zero samples, baseline never snapshotted.
	gate, _, _ := newGate(staticIntegrity{verify.Result{Status: verify.StatusNoChecksums}})

	d := gate.Evaluate(context.Background(), nil)

	assert.Equal(t, canary.Rollback, d.Recommendation)
	require.Len(t, d.FailureReasons, 1)
	assert.Contains(t, d.FailureReasons[0], "integrity status no_checksums")
}

func TestDedupeKey_StableAcrossReasonOrder(t *testing.T) {
	a := canary.DedupeKey([]string{"r1", "r2"}, canary.Rollback)
	b := canary.DedupeKey([]string{"r2", "r1"}, canary.Rollback)
	assert.Equal(t, a, b)

	c := canary.DedupeKey([]string{"r1", "r2"}, canary.Proceed)
	assert.NotEqual(t, a, c, "recommendation participates in the key")

	d := canary.DedupeKey([]string{"r1"}, canary.Rollback)
	assert.NotEqual(t, a, d)
	assert.Len(t, a, 64)
}
