package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/canaryops/sentinel/internal/auth"
	xlog "github.com/canaryops/sentinel/internal/log"
	"github.com/canaryops/sentinel/internal/ratelimit"
)

// requestIDMiddleware stamps every request with an ID for log correlation.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-Id")
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", rid)
		next.ServeHTTP(w, r.WithContext(xlog.ContextWithRequestID(r.Context(), rid)))
	})
}

// securityHeaders sets baseline response hardening headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger := xlog.WithComponentFromContext(r.Context(), "api")
		logger.Debug().
			Str("event", "http.request").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("client", ratelimit.ClientIP(r)).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

// authMiddleware enforces bearer-token authentication for the canary
// surface. Missing or malformed headers are rejected before any business
// logic runs; comparison is constant-time.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.CanaryToken == "" {
			// Fail-closed: no configured secret means no elevated access.
			logger := xlog.WithComponentFromContext(r.Context(), "auth")
			logger.Error().
				Str("event", "auth.fail_closed").
				Msg("SENTINEL_CANARY_TOKEN not set, denying access")
			writeUnauthorized(w)
			return
		}

		token := auth.ExtractToken(r)
		if token == "" {
			logger := xlog.WithComponentFromContext(r.Context(), "auth")
			logger.Warn().
				Str("event", "auth.missing_header").
				Msg("authorization header missing or malformed")
			writeUnauthorized(w)
			return
		}
		if !auth.AuthorizeToken(token, s.cfg.CanaryToken) {
			logger := xlog.WithComponentFromContext(r.Context(), "auth")
			logger.Warn().
				Str("event", "auth.invalid_token").
				Msg("invalid canary token")
			writeForbidden(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// canaryRateLimit applies the per-client token bucket to the canary surface.
func (s *Server) canaryRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := ratelimit.ClientIP(r)
		if !s.limiter.Allow(client) {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":  "rate_limit_exceeded",
				"detail": "Too many requests. Please try again later.",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
