// SPDX-License-Identifier: MIT

package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/canaryops/sentinel/internal/metrics"
)

// Config holds per-client token-bucket parameters for the canary endpoints.
type Config struct {
	RPS   rate.Limit // refill rate per client
	Burst int        // bucket capacity per client

	// Cleanup interval for idle per-client buckets
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults for polled health endpoints.
func DefaultConfig() Config {
	return Config{
		RPS:             5,
		Burst:           10,
		CleanupInterval: 5 * time.Minute,
	}
}

// Limiter manages per-client token buckets. Client identity is the caller's
// IP; buckets are created lazily and dropped wholesale on cleanup.
type Limiter struct {
	config Config

	perClient   map[string]*rate.Limiter
	mu          sync.Mutex
	lastCleanup time.Time
}

// New creates a rate limiter with the given config.
func New(config Config) *Limiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	return &Limiter{
		config:      config,
		perClient:   make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

// Allow checks whether one request from the client is admitted.
// Lookup-or-create plus Allow is a compound operation; the bucket map is
// guarded by a single mutex, the bucket itself is internally synchronized.
func (l *Limiter) Allow(client string) bool {
	bucket := l.getBucket(client)
	if !bucket.Allow() {
		metrics.IncRateLimited("canary")
		return false
	}
	l.maybeCleanup()
	return true
}

func (l *Limiter) getBucket(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, exists := l.perClient[client]
	if !exists {
		bucket = rate.NewLimiter(l.config.RPS, l.config.Burst)
		l.perClient[client] = bucket
	}
	return bucket
}

// maybeCleanup drops all per-client buckets once the cleanup interval has
// passed. Idle clients simply get a fresh full bucket next time.
func (l *Limiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) < l.config.CleanupInterval {
		return
	}
	l.perClient = make(map[string]*rate.Limiter)
	l.lastCleanup = time.Now()
}

// ClientIP extracts the real client IP from the request.
func ClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs: "client, proxy1, proxy2".
	// Take the first one (original client).
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx > 0 {
			xff = xff[:idx]
		}
		if xff = strings.TrimSpace(xff); xff != "" {
			return xff
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
