package metrics

import (
	"sync"
	"time"
)

const readinessMaxEvents = 4096

type readinessEvent struct {
	at time.Time
	ok bool
}

// Readiness is a rolling-window counter of probe outcomes, consumed by the
// canary gate as the readiness-fail-rate SLO input.
type Readiness struct {
	mu     sync.Mutex
	window time.Duration
	events []readinessEvent

	now func() time.Time
}

// NewReadiness creates a tracker with the given rolling window.
func NewReadiness(window time.Duration) *Readiness {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &Readiness{
		window: window,
		events: make([]readinessEvent, 0, 64),
		now:    time.Now,
	}
}

// Record appends one probe outcome.
func (r *Readiness) Record(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked(r.now())
	r.events = append(r.events, readinessEvent{at: r.now(), ok: ok})
	if len(r.events) > readinessMaxEvents {
		r.events = r.events[len(r.events)-readinessMaxEvents:]
	}
}

// FailRate returns failures/total within the window, 0.0 when the window
// holds zero events.
func (r *Readiness) FailRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked(r.now())
	if len(r.events) == 0 {
		return 0.0
	}
	failed := 0
	for _, e := range r.events {
		if !e.ok {
			failed++
		}
	}
	return float64(failed) / float64(len(r.events))
}

func (r *Readiness) pruneLocked(now time.Time) {
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.events) && r.events[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		r.events = r.events[i:]
	}
}
