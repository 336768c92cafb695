// Package api provides the HTTP surface: canary gating, on-demand
// verification, dashboard analytics, and probe endpoints.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/canaryops/sentinel/internal/alerting"
	"github.com/canaryops/sentinel/internal/canary"
	"github.com/canaryops/sentinel/internal/config"
	"github.com/canaryops/sentinel/internal/health"
	xlog "github.com/canaryops/sentinel/internal/log"
	"github.com/canaryops/sentinel/internal/metrics"
	"github.com/canaryops/sentinel/internal/ratelimit"
	"github.com/canaryops/sentinel/internal/verify"
)

// Server holds the HTTP handlers and their collaborators. All shared state
// lives in the injected services; the server itself is stateless.
type Server struct {
	cfg       config.Config
	gate      *canary.Gate
	worker    *verify.Worker
	tracker   *metrics.Tracker
	readiness *metrics.Readiness
	failures  *alerting.FailureTracker
	limiter   *ratelimit.Limiter
	healthMgr *health.Manager
	logger    zerolog.Logger
}

// Deps bundles the constructor dependencies.
type Deps struct {
	Config    config.Config
	Gate      *canary.Gate
	Worker    *verify.Worker
	Tracker   *metrics.Tracker
	Readiness *metrics.Readiness
	Failures  *alerting.FailureTracker
	Limiter   *ratelimit.Limiter
	Health    *health.Manager
}

// NewServer creates the API server from explicitly injected services.
func NewServer(deps Deps) *Server {
	return &Server{
		cfg:       deps.Config,
		gate:      deps.Gate,
		worker:    deps.Worker,
		tracker:   deps.Tracker,
		readiness: deps.Readiness,
		failures:  deps.Failures,
		limiter:   deps.Limiter,
		healthMgr: deps.Health,
		logger:    xlog.WithComponent("api"),
	}
}

// Router assembles the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(securityHeaders)
	r.Use(s.requestLogger)

	// Probes and prometheus scrape: unauthenticated, cheap.
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Canary surface: bearer token + per-client token bucket.
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Use(s.canaryRateLimit)
			r.Get("/canary/check", s.handleCanaryCheck)
			r.Get("/canary/status", s.handleCanaryStatus)
			r.Get("/verify", s.handleVerify)
			r.Post("/metrics/record", s.handleRecordMetrics)
		})
	})

	// Dashboard analytics: read-only, HTTP-level per-IP rate limit.
	r.Route("/dashboard/analytics", func(r chi.Router) {
		r.Use(httprate.Limit(
			120,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				metrics.IncRateLimited("dashboard")
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate_limit_exceeded"})
			}),
		))
		r.Get("/trends", s.handleTrends)
		r.Get("/top_failures", s.handleTopFailures)
	})

	return r
}
