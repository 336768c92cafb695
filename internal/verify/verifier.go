// Package verify re-scans the deployment tree, diffs it against the stored
// baseline manifest, and classifies the outcome. The Verify call sits on a
// production health-check hot path: it never returns an error, all failure
// is communicated through the Result status.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/canaryops/sentinel/internal/log"
	"github.com/canaryops/sentinel/internal/manifest"
	"github.com/canaryops/sentinel/internal/metrics"
	"github.com/canaryops/sentinel/internal/signature"
)

// Config holds the verification policy. Production is the single injected
// environment flag; it is never re-read from the environment here.
type Config struct {
	Mode          string  // strict|lenient
	Production    bool    // escalate the spike guard to fatal
	SpikeFraction float64 // fraction of baseline count that trips the spike guard
	MaxNewFiles   int     // lenient: tolerated new files; <0 means unlimited
}

// Verifier compares the current tree state against the persisted baseline.
type Verifier struct {
	store   *manifest.Store
	builder *manifest.Builder
	signer  *signature.Service
	cfg     Config
	logger  zerolog.Logger
}

// New creates a verifier. The builder must be configured with the same root
// and ignore policy the deployment pipeline used.
func New(store *manifest.Store, builder *manifest.Builder, signer *signature.Service, cfg Config) *Verifier {
	return &Verifier{
		store:   store,
		builder: builder,
		signer:  signer,
		cfg:     cfg,
		logger:  xlog.WithComponent("verify"),
	}
}

// Verify runs one full verification pass. It never panics out and never
// returns an error: callers always receive a structured Result.
func (v *Verifier) Verify(ctx context.Context) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = v.errorResult(fmt.Sprintf("internal panic: %v", r))
		}
		metrics.IncVerification(string(res.Status))
	}()

	res = v.verify(ctx)

	v.logger.Info().
		Str("event", "verify.completed").
		Str("status", string(res.Status)).
		Int("modified", res.Summary.ModifiedCount).
		Int("missing", res.Summary.MissingCount).
		Int("new", res.Summary.NewCount).
		Int64("duration_ms", res.Summary.ScanDurationMS).
		Msg("verification completed")

	return res
}

func (v *Verifier) verify(ctx context.Context) Result {
	res := Result{
		Status:        StatusError,
		ModifiedFiles: []string{},
		MissingFiles:  []string{},
		NewFiles:      []string{},
		CheckedAt:     time.Now().UTC(),
	}

	// Load baseline. A missing baseline is a distinct terminal state, not
	// corruption: "never deployed" must be distinguishable from "tampered".
	baselineChecksums, checksumsRaw, err := v.store.LoadChecksums()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			res.Status = StatusNoChecksums
			return res
		}
		res.Err = err.Error()
		return res
	}
	baseline, metadataRaw, err := v.store.LoadMetadata()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			res.Status = StatusNoMetadata
			return res
		}
		res.Err = err.Error()
		return res
	}
	res.DeploymentID = baseline.DeploymentID
	res.Summary.BaselineFileCount = len(baselineChecksums)

	tampered := v.checkSignatures(&res, checksumsRaw, metadataRaw)

	// Fresh scan: one consistent snapshot, compared once.
	current, stats, err := v.builder.Build(ctx, baseline.DeploymentID)
	res.Summary.ScanDurationMS = stats.Duration.Milliseconds()
	res.Summary.BytesHashed = stats.BytesHashed
	metrics.ObserveScan(stats.Duration, stats.BytesHashed)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	res.Summary.CurrentFileCount = len(current.Checksums)

	res.IgnoreInfo = IgnoreInfo{
		CurrentHash:  current.IgnoreHash,
		ManifestHash: baseline.IgnoreHash,
		Mismatch:     current.IgnoreHash != baseline.IgnoreHash,
	}

	diffChecksums(baselineChecksums, current.Checksums, &res)

	res.Status = v.classify(&res, baseline, current, tampered)
	res.IntegrityVerified = res.Status == StatusVerified
	return res
}

// checkSignatures fills the tri-state signature fields and reports whether
// any configured signature failed. With signing disabled both fields stay
// nil and nothing is blocked.
func (v *Verifier) checkSignatures(res *Result, checksumsRaw, metadataRaw []byte) bool {
	if !v.signer.Enabled() {
		return false
	}

	csSig, csErr := v.store.LoadSignature(manifest.ChecksumsSigFile)
	mdSig, mdErr := v.store.LoadSignature(manifest.MetadataSigFile)

	// An unreadable or absent signature file with signing enabled counts as
	// an invalid signature: Verify("") fails.
	csOK := csErr == nil && v.signer.Verify(checksumsRaw, csSig)
	mdOK := mdErr == nil && v.signer.Verify(metadataRaw, mdSig)

	res.Signatures.ChecksumsHMACOK = &csOK
	res.Signatures.MetadataHMACOK = &mdOK

	return !csOK || !mdOK
}

// classify applies the precedence rules: tampering outranks policy drift,
// policy drift outranks corruption, the spike guard escalates only in
// production.
func (v *Verifier) classify(res *Result, baseline, current manifest.Manifest, tampered bool) Status {
	if tampered {
		return StatusTampered
	}

	policyChanged := baseline.SchemaVersion != current.SchemaVersion ||
		res.IgnoreInfo.Mismatch ||
		(v.cfg.Mode == "strict" &&
			(baseline.HashAlgorithm != current.HashAlgorithm || baseline.HashVersion != current.HashVersion))
	if policyChanged {
		return StatusPolicyChanged
	}

	// Spike guard: mass simultaneous churn in both directions usually means
	// a broken scan (volume not mounted, mid-rewrite tree), not a clean diff.
	if v.cfg.Production && v.spikeTripped(res.Summary) {
		v.logger.Error().
			Str("event", "verify.spike_guard").
			Int("missing", res.Summary.MissingCount).
			Int("new", res.Summary.NewCount).
			Int("baseline", res.Summary.BaselineFileCount).
			Float64("fraction", v.cfg.SpikeFraction).
			Msg("spike guard tripped, escalating to corrupted")
		return StatusCorrupted
	}

	if res.Summary.ModifiedCount > 0 || res.Summary.MissingCount > 0 {
		return StatusCorrupted
	}

	if res.Summary.NewCount > v.newFileBudget() && v.newFileBudget() >= 0 {
		return StatusCorrupted
	}

	return StatusVerified
}

// newFileBudget returns the tolerated number of new files: 0 in strict mode,
// the configured bound in lenient mode (<0 = unlimited).
func (v *Verifier) newFileBudget() int {
	if v.cfg.Mode != "lenient" {
		return 0
	}
	return v.cfg.MaxNewFiles
}

func (v *Verifier) spikeTripped(s Summary) bool {
	if s.BaselineFileCount == 0 {
		return false
	}
	limit := v.cfg.SpikeFraction * float64(s.BaselineFileCount)
	return float64(s.MissingCount) > limit && float64(s.NewCount) > limit
}

func (v *Verifier) errorResult(msg string) Result {
	return Result{
		Status:        StatusError,
		ModifiedFiles: []string{},
		MissingFiles:  []string{},
		NewFiles:      []string{},
		CheckedAt:     time.Now().UTC(),
		Err:           msg,
	}
}

// diffChecksums computes the symmetric set difference plus value comparison
// on the intersection, keyed by relative path. One linear pass per map.
func diffChecksums(baseline, current map[string]string, res *Result) {
	for rel, want := range baseline {
		got, ok := current[rel]
		switch {
		case !ok:
			res.MissingFiles = append(res.MissingFiles, rel)
		case got != want:
			res.ModifiedFiles = append(res.ModifiedFiles, rel)
		}
	}
	for rel := range current {
		if _, ok := baseline[rel]; !ok {
			res.NewFiles = append(res.NewFiles, rel)
		}
	}

	sort.Strings(res.ModifiedFiles)
	sort.Strings(res.MissingFiles)
	sort.Strings(res.NewFiles)

	res.Summary.ModifiedCount = len(res.ModifiedFiles)
	res.Summary.MissingCount = len(res.MissingFiles)
	res.Summary.NewCount = len(res.NewFiles)
}
