package alerting

import (
	"sync"
	"time"
)

// Sampler hard-caps alert emission per rolling one-second window,
// independent of dedupe: a burst of distinct new failures is still limited
// at the transport layer.
type Sampler struct {
	mu     sync.Mutex
	cap    int
	stamps []time.Time

	now func() time.Time
}

// NewSampler creates a sampler allowing at most perSecond sends per rolling second.
func NewSampler(perSecond int) *Sampler {
	if perSecond <= 0 {
		perSecond = 5
	}
	return &Sampler{
		cap:    perSecond,
		stamps: make([]time.Time, 0, perSecond),
		now:    time.Now,
	}
}

// ShouldSend reports whether an alert may be emitted now. Check-and-record
// is one compound operation under the lock.
func (s *Sampler) ShouldSend() bool {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-time.Second)
	i := 0
	for i < len(s.stamps) && s.stamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		s.stamps = s.stamps[i:]
	}

	if len(s.stamps) >= s.cap {
		return false
	}
	s.stamps = append(s.stamps, now)
	return true
}
