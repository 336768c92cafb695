package alerting

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Clamps against pathological dashboard calls.
const (
	minFailureWindow = time.Minute
	maxTopFailures   = 50
	maxFailureEvents = 4096
)

// groupSeparator joins sorted reasons into a group key; non-printable so a
// reason containing a comma cannot fragment or merge groups.
const groupSeparator = "\x1f"

type failureEvent struct {
	groupKey string
	reasons  []string
	at       time.Time
}

// FailureGroup is one ranked entry of TopFailures output.
type FailureGroup struct {
	Reasons   []string  `json:"reasons"`
	Count     int       `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	PerMinute float64   `json:"per_minute"`
}

// FailureTracker keeps a bounded history of failure-reason sets and ranks
// them by frequency. Reason order never fragments a group: the group key is
// the sorted reason set.
type FailureTracker struct {
	mu     sync.Mutex
	events []failureEvent

	now func() time.Time
}

// NewFailureTracker creates an empty tracker.
func NewFailureTracker() *FailureTracker {
	return &FailureTracker{
		events: make([]failureEvent, 0, 64),
		now:    time.Now,
	}
}

// Record appends one failure occurrence with its reason set.
func (t *FailureTracker) Record(reasons []string) {
	if len(reasons) == 0 {
		return
	}
	sorted := make([]string, len(reasons))
	copy(sorted, reasons)
	sort.Strings(sorted)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.events = append(t.events, failureEvent{
		groupKey: strings.Join(sorted, groupSeparator),
		reasons:  sorted,
		at:       t.now(),
	})
	if len(t.events) > maxFailureEvents {
		t.events = t.events[len(t.events)-maxFailureEvents:]
	}
}

// TopFailures groups occurrences within the window and returns the topN
// groups by count. Window is clamped to at least one minute, topN to at
// most 50.
func (t *FailureTracker) TopFailures(window time.Duration, topN int) []FailureGroup {
	if window < minFailureWindow {
		window = minFailureWindow
	}
	if topN <= 0 {
		topN = 10
	}
	if topN > maxTopFailures {
		topN = maxTopFailures
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-window)
	groups := make(map[string]*FailureGroup)
	for _, e := range t.events {
		if e.at.Before(cutoff) {
			continue
		}
		g, ok := groups[e.groupKey]
		if !ok {
			g = &FailureGroup{Reasons: e.reasons, FirstSeen: e.at, LastSeen: e.at}
			groups[e.groupKey] = g
		}
		g.Count++
		if e.at.Before(g.FirstSeen) {
			g.FirstSeen = e.at
		}
		if e.at.After(g.LastSeen) {
			g.LastSeen = e.at
		}
	}

	out := make([]FailureGroup, 0, len(groups))
	for _, g := range groups {
		g.PerMinute = float64(g.Count) / window.Minutes()
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return strings.Join(out[i].Reasons, groupSeparator) < strings.Join(out[j].Reasons, groupSeparator)
	})

	if len(out) > topN {
		out = out[:topN]
	}
	return out
}
