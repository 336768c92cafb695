// Package config assembles the immutable runtime configuration for sentinel
// from environment variables. Invalid configuration at startup is fatal;
// everything downstream receives a validated snapshot by value.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Integrity comparison modes.
const (
	ModeStrict  = "strict"
	ModeLenient = "lenient"
)

// Hash algorithms accepted for manifest digests.
const (
	HashSHA256 = "sha256"
	HashSHA512 = "sha512"
)

// Config is the validated runtime configuration snapshot.
type Config struct {
	// Deployment tree and state location
	Root     string // deployment root to fingerprint
	DataDir  string // where checksums.json / deployment_metadata.json live
	Version  string // deployed version string, stamped into manifests
	GitSHA   string // optional build attribution for provenance.json
	Listen   string // HTTP listen address
	LogLevel string

	// Integrity policy
	Mode          string  // strict|lenient (forced to strict in production)
	HashAlgorithm string  // sha256|sha512
	Production    bool    // single injected production flag (spike-guard escalation)
	SpikeFraction float64 // missing+new fraction of baseline that trips the spike guard
	MaxNewFiles   int     // lenient mode: tolerated new files; <0 means unlimited

	// Signing
	SigningKey string // empty disables signatures

	// Ignore policy
	IgnoreFile  string   // optional JSON file with extra patterns
	IgnoreExtra []string // extra patterns from environment

	// Canary / SLO thresholds
	CanaryToken           string
	LatencyP95ThresholdMS float64
	ErrorRateThreshold    float64
	ReadinessFailThresh   float64

	// Rate limiting / alerting
	RateRPS         float64
	RateBurst       int
	AlertsPerSecond int
	DedupeTTL       time.Duration
	DedupeMaxKeys   int

	// Background verification
	VerifyInterval time.Duration
}

// FromEnv reads the full configuration from SENTINEL_* environment variables.
func FromEnv() Config {
	cfg := Config{
		Root:     ParseString("SENTINEL_ROOT", "."),
		DataDir:  ParseString("SENTINEL_DATA_DIR", "./data"),
		Version:  ParseString("SENTINEL_VERSION", "dev"),
		GitSHA:   ParseString("SENTINEL_GIT_SHA", ""),
		Listen:   ParseString("SENTINEL_LISTEN", ":8080"),
		LogLevel: ParseString("SENTINEL_LOG_LEVEL", "info"),

		Mode:          ParseString("SENTINEL_MODE", ModeStrict),
		HashAlgorithm: ParseString("SENTINEL_HASH_ALGORITHM", HashSHA256),
		Production:    ParseString("SENTINEL_ENVIRONMENT", "development") == "production",
		SpikeFraction: ParseFloat("SENTINEL_SPIKE_FRACTION", 0.3),
		MaxNewFiles:   ParseInt("SENTINEL_MAX_NEW_FILES", -1),

		SigningKey: ParseString("SENTINEL_SIGNING_KEY", ""),

		IgnoreFile:  ParseString("SENTINEL_IGNORE_FILE", ""),
		IgnoreExtra: ParseStringList("SENTINEL_IGNORE_EXTRA"),

		CanaryToken:           ParseString("SENTINEL_CANARY_TOKEN", ""),
		LatencyP95ThresholdMS: ParseFloat("SENTINEL_SLO_LATENCY_P95_MS", 500),
		ErrorRateThreshold:    ParseFloat("SENTINEL_SLO_ERROR_RATE", 0.05),
		ReadinessFailThresh:   ParseFloat("SENTINEL_SLO_READINESS_FAIL_RATE", 0.1),

		RateRPS:         ParseFloat("SENTINEL_RATE_RPS", 5),
		RateBurst:       ParseInt("SENTINEL_RATE_BURST", 10),
		AlertsPerSecond: ParseInt("SENTINEL_ALERTS_PER_SECOND", 5),
		DedupeTTL:       ParseDuration("SENTINEL_DEDUPE_TTL", 10*time.Minute),
		DedupeMaxKeys:   ParseInt("SENTINEL_DEDUPE_MAX_KEYS", 1024),

		VerifyInterval: ParseDuration("SENTINEL_VERIFY_INTERVAL", 5*time.Minute),
	}

	// Production deployments never run lenient comparisons, regardless of override.
	if cfg.Production {
		cfg.Mode = ModeStrict
	}

	return cfg
}

// Validate checks the configuration for startup-fatal errors.
func (c Config) Validate() error {
	var errs []error

	if c.Root == "" {
		errs = append(errs, errors.New("root must not be empty"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data dir must not be empty"))
	}
	if c.Mode != ModeStrict && c.Mode != ModeLenient {
		errs = append(errs, fmt.Errorf("invalid mode %q (want %s or %s)", c.Mode, ModeStrict, ModeLenient))
	}
	if c.HashAlgorithm != HashSHA256 && c.HashAlgorithm != HashSHA512 {
		errs = append(errs, fmt.Errorf("invalid hash algorithm %q", c.HashAlgorithm))
	}
	if c.SpikeFraction <= 0 || c.SpikeFraction > 1 {
		errs = append(errs, fmt.Errorf("spike fraction %v out of range (0,1]", c.SpikeFraction))
	}
	if c.LatencyP95ThresholdMS <= 0 {
		errs = append(errs, fmt.Errorf("latency p95 threshold %v must be positive", c.LatencyP95ThresholdMS))
	}
	if c.ErrorRateThreshold < 0 || c.ErrorRateThreshold > 1 {
		errs = append(errs, fmt.Errorf("error rate threshold %v out of range [0,1]", c.ErrorRateThreshold))
	}
	if c.ReadinessFailThresh < 0 || c.ReadinessFailThresh > 1 {
		errs = append(errs, fmt.Errorf("readiness fail threshold %v out of range [0,1]", c.ReadinessFailThresh))
	}
	if c.RateRPS <= 0 || c.RateBurst <= 0 {
		errs = append(errs, fmt.Errorf("rate limit rps=%v burst=%d must be positive", c.RateRPS, c.RateBurst))
	}
	if c.AlertsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("alerts per second %d must be positive", c.AlertsPerSecond))
	}
	if c.DedupeTTL <= 0 || c.DedupeMaxKeys <= 0 {
		errs = append(errs, fmt.Errorf("dedupe ttl=%v max keys=%d must be positive", c.DedupeTTL, c.DedupeMaxKeys))
	}
	if c.VerifyInterval < time.Second {
		errs = append(errs, fmt.Errorf("verify interval %v below 1s", c.VerifyInterval))
	}

	return errors.Join(errs...)
}
