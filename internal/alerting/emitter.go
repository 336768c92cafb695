package alerting

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	xlog "github.com/canaryops/sentinel/internal/log"
	"github.com/canaryops/sentinel/internal/metrics"
)

// Emitter fans alerts through dedupe and the transport sampler before
// logging them as structured events. It also records failure reasons into
// the tracker backing the dashboard's top-failures view.
type Emitter struct {
	dedupe   *DedupeCache
	sampler  *Sampler
	failures *FailureTracker
	logger   zerolog.Logger
}

// NewEmitter wires the suppression layers together.
func NewEmitter(dedupe *DedupeCache, sampler *Sampler, failures *FailureTracker) *Emitter {
	return &Emitter{
		dedupe:   dedupe,
		sampler:  sampler,
		failures: failures,
		logger:   xlog.WithComponent("alerting"),
	}
}

// Failures exposes the failure tracker for dashboard handlers.
func (e *Emitter) Failures() *FailureTracker { return e.failures }

// Emit records the failure and emits one alert if both dedupe and sampler
// allow it. Returns true when the alert was actually sent.
func (e *Emitter) Emit(key string, reasons []string, recommendation string) bool {
	e.failures.Record(reasons)

	if e.dedupe.Seen(key) {
		metrics.IncAlertSuppressed("dedupe")
		return false
	}
	if !e.sampler.ShouldSend() {
		metrics.IncAlertSuppressed("sampler")
		return false
	}

	e.logger.Warn().
		Str("event", "alert.emitted").
		Str("alert_id", uuid.NewString()).
		Str("dedupe_key", key).
		Str("recommendation", recommendation).
		Strs("reasons", reasons).
		Msg("canary alert")

	metrics.IncAlertEmitted()
	return true
}
