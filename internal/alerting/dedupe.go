// Package alerting suppresses duplicate and bursty alerts and keeps a ranked
// history of recent failure reasons for the dashboard.
package alerting

import (
	"container/list"
	"sync"
	"time"
)

// DedupeCache is an LRU-with-TTL set of alert keys, bounded by both a max
// key count and a time-to-live.
type DedupeCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxKeys int
	order   *list.List               // front = most recent
	entries map[string]*list.Element // key -> element whose value is *dedupeEntry

	now func() time.Time
}

type dedupeEntry struct {
	key  string
	seen time.Time
}

// NewDedupeCache creates a cache with the given TTL and key bound.
func NewDedupeCache(ttl time.Duration, maxKeys int) *DedupeCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxKeys <= 0 {
		maxKeys = 1024
	}
	return &DedupeCache{
		ttl:     ttl,
		maxKeys: maxKeys,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// Seen reports whether key was already recorded within the TTL window,
// inserting it on first sight. Insert-and-report-false is one compound
// operation under the lock.
func (c *DedupeCache) Seen(key string) bool {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*dedupeEntry)
		if now.Sub(entry.seen) < c.ttl {
			entry.seen = now
			c.order.MoveToFront(el)
			return true
		}
		// expired: treat as first sight again
		entry.seen = now
		c.order.MoveToFront(el)
		return false
	}

	el := c.order.PushFront(&dedupeEntry{key: key, seen: now})
	c.entries[key] = el

	for c.order.Len() > c.maxKeys {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*dedupeEntry).key)
	}

	return false
}

// Len returns the number of cached keys.
func (c *DedupeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *DedupeCache) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}
