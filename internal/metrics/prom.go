package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	verificationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "verification_runs_total",
		Help:      "Verification passes by terminal status",
	}, []string{"status"})

	scanDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Name:      "scan_duration_seconds",
		Help:      "Full-tree scan duration per verification pass",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})

	scanBytesHashedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "scan_bytes_hashed_total",
		Help:      "Cumulative bytes hashed across verification scans",
	})

	canaryDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "canary_decisions_total",
		Help:      "Canary gate decisions by recommendation",
	}, []string{"recommendation"})

	rateLimitRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "ratelimit_rejected_total",
		Help:      "Requests rejected by the per-client token bucket",
	}, []string{"scope"})

	alertsEmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "alerts_emitted_total",
		Help:      "Alerts emitted after dedupe and sampling",
	})

	alertsSuppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "alerts_suppressed_total",
		Help:      "Alerts suppressed by dedupe or the transport sampler",
	}, []string{"reason"})
)

// IncVerification increments the verification counter with a strict
// low-cardinality status label.
func IncVerification(status string) {
	verificationRunsTotal.WithLabelValues(normalizeStatusLabel(status)).Inc()
}

// ObserveScan records the cost of one full-tree scan.
func ObserveScan(d time.Duration, bytesHashed int64) {
	scanDurationSeconds.Observe(d.Seconds())
	if bytesHashed > 0 {
		scanBytesHashedTotal.Add(float64(bytesHashed))
	}
}

// IncCanaryDecision increments the decision counter by recommendation.
func IncCanaryDecision(recommendation string) {
	switch recommendation {
	case "proceed", "rollback":
	default:
		recommendation = "unknown"
	}
	canaryDecisionsTotal.WithLabelValues(recommendation).Inc()
}

// IncRateLimited increments the rejection counter for the given scope.
func IncRateLimited(scope string) {
	switch scope {
	case "canary", "dashboard":
	default:
		scope = "unknown"
	}
	rateLimitRejectedTotal.WithLabelValues(scope).Inc()
}

// IncAlertEmitted counts an alert that cleared dedupe and sampling.
func IncAlertEmitted() {
	alertsEmittedTotal.Inc()
}

// IncAlertSuppressed counts a suppressed alert by suppression reason.
func IncAlertSuppressed(reason string) {
	switch reason {
	case "dedupe", "sampler":
	default:
		reason = "unknown"
	}
	alertsSuppressedTotal.WithLabelValues(reason).Inc()
}

func normalizeStatusLabel(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "verified", "corrupted", "policy_changed", "tampered", "error", "no_checksums", "no_metadata":
		return strings.ToLower(strings.TrimSpace(status))
	default:
		return "unknown"
	}
}
