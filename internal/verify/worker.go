package verify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/canaryops/sentinel/internal/log"
)

// Worker runs the verification loop off the request path and exposes the
// last completed Result to hot-path consumers (canary gate, health checks).
type Worker struct {
	verifier *Verifier
	interval time.Duration
	busy     atomic.Bool
	logger   zerolog.Logger

	mu      sync.RWMutex
	last    Result
	hasLast bool
}

// NewWorker creates a periodic verification worker.
func NewWorker(verifier *Verifier, interval time.Duration) *Worker {
	return &Worker{
		verifier: verifier,
		interval: interval,
		logger:   xlog.WithComponent("verify.worker"),
	}
}

// Start begins the verification loop. It blocks until the context is
// canceled; an in-flight cycle is allowed to finish. A failed cycle never
// kills the loop.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Initial run directly so the hot path has a snapshot ASAP.
	w.tryRun(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Str("event", "verify.worker_stopped").Msg("verification loop stopped")
			return
		case <-ticker.C:
			// tryRun is guarded by an atomic busy flag: a slow scan simply
			// drops overlapping ticks instead of stacking cycles.
			w.tryRun(ctx)
		}
	}
}

// RunNow performs an on-demand verification and updates the snapshot.
// Concurrent with the periodic loop this may run a second scan; both store
// a full consistent Result.
func (w *Worker) RunNow(ctx context.Context) Result {
	res := w.verifier.Verify(ctx)
	w.storeResult(res)
	return res
}

// Latest returns the last completed result, falling back to an on-demand
// run when no cycle has finished yet (process just started).
func (w *Worker) Latest(ctx context.Context) Result {
	if res, ok := w.Last(); ok {
		return res
	}
	return w.RunNow(ctx)
}

// Last returns the last completed result, if any cycle has finished.
func (w *Worker) Last() (Result, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last, w.hasLast
}

func (w *Worker) tryRun(ctx context.Context) {
	if !w.busy.CompareAndSwap(false, true) {
		return // skip if busy
	}
	defer w.busy.Store(false)

	res := w.verifier.Verify(ctx)
	w.storeResult(res)

	if res.Status == StatusError {
		w.logger.Warn().
			Str("event", "verify.cycle_error").
			Str("error", res.Err).
			Msg("verification cycle failed, continuing after backoff")
		select {
		case <-ctx.Done():
		case <-time.After(w.interval / 4):
		}
	}
}

func (w *Worker) storeResult(res Result) {
	w.mu.Lock()
	w.last = res
	w.hasLast = true
	w.mu.Unlock()
}
