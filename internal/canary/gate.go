// Package canary fuses SLO metrics, readiness outcomes, and integrity
// verification into a single rollback/proceed recommendation. The gate is
// polled by automated deployment tooling and therefore fails closed: any
// internal error yields a rollback decision, never an unhandled error.
package canary

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/canaryops/sentinel/internal/alerting"
	xlog "github.com/canaryops/sentinel/internal/log"
	"github.com/canaryops/sentinel/internal/metrics"
	"github.com/canaryops/sentinel/internal/verify"
)

// Recommendation is the gate's verdict.
type Recommendation string

const (
	Proceed  Recommendation = "proceed"
	Rollback Recommendation = "rollback"
)

// Thresholds are the SLO limits a canary must stay under.
type Thresholds struct {
	LatencyP95Ms      float64 `json:"latency_p95_ms"`
	ErrorRate         float64 `json:"error_rate"`
	ReadinessFailRate float64 `json:"readiness_fail_rate"`
}

// Observed are the current SLO readings the decision was based on.
type Observed struct {
	LatencyP95Ms      float64 `json:"latency_p95_ms"`
	ErrorRate         float64 `json:"error_rate"`
	ReadinessFailRate float64 `json:"readiness_fail_rate"`
	Samples           int     `json:"samples"`
}

// Runbook links a failure reason to operator documentation.
type Runbook struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// IntegritySummary condenses the verification result for the decision body.
type IntegritySummary struct {
	Status            verify.Status `json:"status"`
	IntegrityVerified bool          `json:"integrity_verified"`
	ModifiedCount     int           `json:"modified_count"`
	MissingCount      int           `json:"missing_count"`
	NewCount          int           `json:"new_count"`
	CheckedAt         time.Time     `json:"checked_at"`
}

// Decision is the gate output. Ephemeral: recomputed per request, never persisted.
type Decision struct {
	Recommendation Recommendation   `json:"recommendation"`
	FailureReasons []string         `json:"failure_reasons"`
	Thresholds     Thresholds       `json:"thresholds"`
	Observed       Observed         `json:"observed_metrics"`
	Integrity      IntegritySummary `json:"integrity_summary"`
	Runbooks       []Runbook        `json:"runbooks"`
	EvaluatedAt    time.Time        `json:"evaluated_at"`
}

// IntegritySource supplies the verification result the gate evaluates.
// The background worker serves its last completed snapshot here so the
// hot path never waits on a full-tree scan.
type IntegritySource interface {
	Latest(ctx context.Context) verify.Result
}

// Gate evaluates canary health on each poll.
type Gate struct {
	tracker   *metrics.Tracker
	readiness *metrics.Readiness
	integrity IntegritySource
	emitter   *alerting.Emitter
	defaults  Thresholds
	logger    zerolog.Logger
}

// New wires the gate to its inputs.
func New(tracker *metrics.Tracker, readiness *metrics.Readiness, integrity IntegritySource, emitter *alerting.Emitter, defaults Thresholds) *Gate {
	return &Gate{
		tracker:   tracker,
		readiness: readiness,
		integrity: integrity,
		emitter:   emitter,
		defaults:  defaults,
		logger:    xlog.WithComponent("canary"),
	}
}

// Evaluate produces one decision. Overrides replace individual default
// thresholds when positive. Never panics out: a recovered panic becomes a
// rollback with a generic reason.
func (g *Gate) Evaluate(ctx context.Context, overrides *Thresholds) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error().
				Str("event", "canary.internal_error").
				Interface("panic", r).
				Msg("canary evaluation failed, failing closed")
			d = Decision{
				Recommendation: Rollback,
				FailureReasons: []string{"internal error during canary evaluation"},
				Thresholds:     g.effectiveThresholds(overrides),
				Runbooks:       matchRunbooks([]string{"internal error during canary evaluation"}),
				EvaluatedAt:    time.Now().UTC(),
			}
		}
		metrics.IncCanaryDecision(string(d.Recommendation))
	}()

	thresholds := g.effectiveThresholds(overrides)
	averages := g.tracker.MovingAverages()
	readinessFail := g.readiness.FailRate()
	integrity := g.integrity.Latest(ctx)

	observed := Observed{
		LatencyP95Ms:      averages.P95Ms,
		ErrorRate:         averages.ErrorRate,
		ReadinessFailRate: readinessFail,
		Samples:           averages.Samples,
	}

	var reasons []string
	if observed.LatencyP95Ms > thresholds.LatencyP95Ms {
		reasons = append(reasons, fmt.Sprintf(
			"latency p95 %.1fms exceeds threshold %.1fms", observed.LatencyP95Ms, thresholds.LatencyP95Ms))
	}
	if observed.ErrorRate > thresholds.ErrorRate {
		reasons = append(reasons, fmt.Sprintf(
			"error rate %.4f exceeds threshold %.4f", observed.ErrorRate, thresholds.ErrorRate))
	}
	if observed.ReadinessFailRate > thresholds.ReadinessFailRate {
		reasons = append(reasons, fmt.Sprintf(
			"readiness fail rate %.4f exceeds threshold %.4f", observed.ReadinessFailRate, thresholds.ReadinessFailRate))
	}
	if !integrity.IntegrityVerified {
		reason := fmt.Sprintf("integrity status %s", integrity.Status)
		if integrity.Summary.ModifiedCount > 0 || integrity.Summary.MissingCount > 0 || integrity.Summary.NewCount > 0 {
			reason += fmt.Sprintf(" (%d modified, %d missing, %d new)",
				integrity.Summary.ModifiedCount, integrity.Summary.MissingCount, integrity.Summary.NewCount)
		}
		if integrity.Err != "" {
			reason += ": " + integrity.Err
		}
		reasons = append(reasons, reason)
	}

	d = Decision{
		Recommendation: Proceed,
		FailureReasons: reasons,
		Thresholds:     thresholds,
		Observed:       observed,
		Integrity: IntegritySummary{
			Status:            integrity.Status,
			IntegrityVerified: integrity.IntegrityVerified,
			ModifiedCount:     integrity.Summary.ModifiedCount,
			MissingCount:      integrity.Summary.MissingCount,
			NewCount:          integrity.Summary.NewCount,
			CheckedAt:         integrity.CheckedAt,
		},
		Runbooks:    matchRunbooks(reasons),
		EvaluatedAt: time.Now().UTC(),
	}
	if len(reasons) > 0 {
		d.Recommendation = Rollback
		g.emitter.Emit(DedupeKey(reasons, d.Recommendation), reasons, string(d.Recommendation))
	}

	g.logger.Info().
		Str("event", "canary.evaluated").
		Str("recommendation", string(d.Recommendation)).
		Int("failures", len(reasons)).
		Str("integrity_status", string(integrity.Status)).
		Msg("canary gate evaluated")

	return d
}

func (g *Gate) effectiveThresholds(overrides *Thresholds) Thresholds {
	t := g.defaults
	if overrides == nil {
		return t
	}
	if overrides.LatencyP95Ms > 0 {
		t.LatencyP95Ms = overrides.LatencyP95Ms
	}
	if overrides.ErrorRate > 0 {
		t.ErrorRate = overrides.ErrorRate
	}
	if overrides.ReadinessFailRate > 0 {
		t.ReadinessFailRate = overrides.ReadinessFailRate
	}
	return t
}

// DedupeKey derives a stable alert key from the sorted reason set plus the
// recommendation, so reason ordering never produces distinct alerts.
func DedupeKey(reasons []string, rec Recommendation) string {
	sorted := make([]string, len(reasons))
	copy(sorted, reasons)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\x1f") + "|" + string(rec)))
	return hex.EncodeToString(sum[:])
}
