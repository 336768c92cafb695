package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/canaryops/sentinel/internal/canary"
	"github.com/canaryops/sentinel/internal/metrics"
)

// handleCanaryCheck evaluates the gate and returns the full decision.
// Always 200 with a structured body: errors are data, not transport
// failures. Responses are never cacheable.
func (s *Server) handleCanaryCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	overrides, err := thresholdOverrides(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	decision := s.gate.Evaluate(r.Context(), overrides)
	writeJSON(w, http.StatusOK, decision)
}

// canaryStatus is the condensed health summary derived from a full decision.
type canaryStatus struct {
	Healthy         bool                  `json:"healthy"`
	Recommendation  canary.Recommendation `json:"recommendation"`
	FailureCount    int                   `json:"failure_count"`
	IntegrityStatus string                `json:"integrity_status"`
	EvaluatedAt     time.Time             `json:"evaluated_at"`
}

func (s *Server) handleCanaryStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	decision := s.gate.Evaluate(r.Context(), nil)
	writeJSON(w, http.StatusOK, canaryStatus{
		Healthy:         decision.Recommendation == canary.Proceed,
		Recommendation:  decision.Recommendation,
		FailureCount:    len(decision.FailureReasons),
		IntegrityStatus: string(decision.Integrity.Status),
		EvaluatedAt:     decision.EvaluatedAt,
	})
}

// handleVerify triggers an on-demand verification pass. The scan cost is
// paid inline here by design; the canary path reads the worker snapshot.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, s.worker.RunNow(r.Context()))
}

type recordMetricsRequest struct {
	P95Ms             float64 `json:"p95_ms"`
	ErrorRate         float64 `json:"error_rate"`
	ReadinessFailRate float64 `json:"readiness_fail_rate"`
}

// handleRecordMetrics ingests one SLO observation into the tracker.
func (s *Server) handleRecordMetrics(w http.ResponseWriter, r *http.Request) {
	var req recordMetricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, fmt.Errorf("invalid body: %w", err))
		return
	}
	if req.P95Ms < 0 || req.ErrorRate < 0 || req.ErrorRate > 1 || req.ReadinessFailRate < 0 || req.ReadinessFailRate > 1 {
		writeBadRequest(w, fmt.Errorf("metric values out of range"))
		return
	}

	s.tracker.Record(metrics.Sample{
		P95Ms:             req.P95Ms,
		ErrorRate:         req.ErrorRate,
		ReadinessFailRate: req.ReadinessFailRate,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// handleTrends returns the resampled SLO series for dashboards.
func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	window, err := durationParam(r, "window", 15*time.Minute)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	step, err := durationParam(r, "step", time.Minute)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"window": window.String(),
		"step":   step.String(),
		"points": s.tracker.Resample(window, step),
	})
}

// handleTopFailures returns the ranked recent failure groups.
func (s *Server) handleTopFailures(w http.ResponseWriter, r *http.Request) {
	window, err := durationParam(r, "window", time.Hour)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	topN := 10
	if raw := r.URL.Query().Get("top_n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, fmt.Errorf("invalid top_n %q", raw))
			return
		}
		topN = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"window":   window.String(),
		"failures": s.failures.TopFailures(window, topN),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	// Liveness is always 200 while the process can answer.
	writeJSON(w, http.StatusOK, s.healthMgr.Health(r.Context()))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	resp := s.healthMgr.Ready(r.Context())
	// Probe outcomes feed the readiness-fail-rate SLO input.
	s.readiness.Record(resp.Ready)

	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// thresholdOverrides parses optional per-request SLO threshold overrides.
func thresholdOverrides(r *http.Request) (*canary.Thresholds, error) {
	q := r.URL.Query()
	var overrides canary.Thresholds
	var any bool

	for key, target := range map[string]*float64{
		"latency_p95_ms_threshold": &overrides.LatencyP95Ms,
		"error_rate_threshold":     &overrides.ErrorRate,
		"readiness_fail_threshold": &overrides.ReadinessFailRate,
	} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid %s %q", key, raw)
		}
		*target = v
		any = true
	}

	if !any {
		return nil, nil
	}
	return &overrides, nil
}

func durationParam(r *http.Request, key string, fallback time.Duration) (time.Duration, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return d, nil
}
