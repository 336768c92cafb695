package manifest

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/canaryops/sentinel/internal/log"
)

// BuildStats reports scan cost for metrics and result summaries.
type BuildStats struct {
	BytesHashed int64
	Duration    time.Duration
}

// Builder walks a deployment root deterministically and produces a Manifest.
// It never touches disk beyond reading; persistence is the Store's job.
type Builder struct {
	root   string
	algo   string
	mode   string
	policy *IgnorePolicy
	logger zerolog.Logger
}

// NewBuilder creates a manifest builder for the given deployment root.
func NewBuilder(root, algo, mode string, policy *IgnorePolicy) *Builder {
	return &Builder{
		root:   root,
		algo:   algo,
		mode:   mode,
		policy: policy,
		logger: xlog.WithComponent("manifest"),
	}
}

// Build scans the tree and assembles a Manifest for the given version.
//
// The walk is deterministic: filepath.WalkDir visits entries in lexical
// order at every level. Dot-directories are pruned, symlinks are skipped
// entirely (never followed, never hashed), and files whose hash computation
// fails are excluded with a warning rather than aborting the scan.
func (b *Builder) Build(ctx context.Context, version string) (Manifest, BuildStats, error) {
	start := time.Now()
	checksums := make(map[string]string)
	var bytesHashed int64

	err := filepath.WalkDir(b.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == b.root {
				return fmt.Errorf("walk root %s: %w", b.root, err)
			}
			b.logger.Warn().Err(err).Str("path", p).Msg("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if p != b.root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}

		// Symlinks are never followed or hashed: they can escape the root
		// or form cycles, and their targets are hashed on their own.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			b.logger.Warn().Err(err).Str("path", p).Msg("skipping file outside root")
			return nil
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, "../") {
			return nil
		}

		if b.policy.ShouldIgnore(rel) {
			return nil
		}

		digest, n, err := HashFile(p, b.algo)
		bytesHashed += n
		if err != nil {
			b.logger.Warn().Err(err).Str("path", rel).Str("event", "manifest.hash_failed").Msg("excluding file from manifest")
			return nil
		}
		checksums[rel] = digest
		return nil
	})

	stats := BuildStats{BytesHashed: bytesHashed, Duration: time.Since(start)}
	if err != nil {
		return Manifest{}, stats, err
	}

	createdAt := time.Now().UTC()
	m := Manifest{
		DeploymentID:  NewDeploymentID(version, createdAt),
		SchemaVersion: SchemaVersion,
		HashAlgorithm: b.algo,
		HashVersion:   HashVersion,
		Mode:          b.mode,
		IgnoreHash:    b.policy.Fingerprint(),
		FileCount:     len(checksums),
		CreatedAt:     createdAt,
		Checksums:     checksums,
	}

	b.logger.Debug().
		Str("event", "manifest.built").
		Str("deployment_id", m.DeploymentID).
		Int("file_count", m.FileCount).
		Int64("bytes_hashed", bytesHashed).
		Dur("duration", stats.Duration).
		Msg("manifest build completed")

	return m, stats, nil
}
