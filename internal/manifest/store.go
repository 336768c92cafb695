package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/canaryops/sentinel/internal/log"
)

// Store persists and loads the manifest state file set under a data
// directory: checksums.json, deployment_metadata.json, their .sig
// companions, and provenance.json. All writes are atomic.
type Store struct {
	dir    string
	logger zerolog.Logger
}

// NewStore creates a store rooted at dir. The directory is created on first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir, logger: xlog.WithComponent("manifest.store")}
}

// Dir returns the state directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// Save persists the manifest as checksums.json + deployment_metadata.json.
// When the signer is enabled, hex MAC signatures are written alongside.
func (s *Store) Save(m Manifest, signer Signer) error {
	// Go marshals map keys sorted, which gives byte-identical output for
	// identical trees.
	checksums, err := json.MarshalIndent(m.Checksums, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checksums: %w", err)
	}
	metadata, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	if err := WriteFileAtomic(s.path(ChecksumsFile), checksums); err != nil {
		return fmt.Errorf("persist checksums: %w", err)
	}
	if err := WriteFileAtomic(s.path(MetadataFile), metadata); err != nil {
		return fmt.Errorf("persist metadata: %w", err)
	}

	if signer != nil && signer.Enabled() {
		if err := WriteFileAtomic(s.path(ChecksumsSigFile), []byte(signer.Sign(checksums))); err != nil {
			return fmt.Errorf("persist checksums signature: %w", err)
		}
		if err := WriteFileAtomic(s.path(MetadataSigFile), []byte(signer.Sign(metadata))); err != nil {
			return fmt.Errorf("persist metadata signature: %w", err)
		}
	}

	s.logger.Info().
		Str("event", "manifest.persisted").
		Str("deployment_id", m.DeploymentID).
		Int("file_count", m.FileCount).
		Str("state_dir", s.dir).
		Msg("manifest persisted")

	return nil
}

// LoadChecksums returns the stored checksum map and its raw bytes (the raw
// bytes are what signatures were computed over).
func (s *Store) LoadChecksums() (map[string]string, []byte, error) {
	data, err := os.ReadFile(filepath.Clean(s.path(ChecksumsFile)))
	if err != nil {
		return nil, nil, fmt.Errorf("read checksums: %w", err)
	}
	var checksums map[string]string
	if err := json.Unmarshal(data, &checksums); err != nil {
		return nil, nil, fmt.Errorf("parse checksums: %w", err)
	}
	return checksums, data, nil
}

// LoadMetadata returns the stored manifest metadata and its raw bytes.
func (s *Store) LoadMetadata() (Manifest, []byte, error) {
	data, err := os.ReadFile(filepath.Clean(s.path(MetadataFile)))
	if err != nil {
		return Manifest{}, nil, fmt.Errorf("read metadata: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, nil, fmt.Errorf("parse metadata: %w", err)
	}
	return m, data, nil
}

// LoadSignature returns the stored hex signature for the named state file,
// or "" when no signature file exists (signing was disabled at deploy time).
func (s *Store) LoadSignature(name string) (string, error) {
	data, err := os.ReadFile(filepath.Clean(s.path(name)))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read signature %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SaveProvenance writes build attribution bound to the deployment. The
// signature covers the attributed fields, not the JSON envelope.
func (s *Store) SaveProvenance(deploymentID, gitSHA string, buildTime time.Time, signer Signer) error {
	p := Provenance{
		DeploymentID: deploymentID,
		GitSHA:       gitSHA,
		BuildTime:    buildTime.UTC(),
	}
	if signer != nil && signer.Enabled() {
		p.Signature = signer.Sign(fmt.Appendf(nil, "%s:%s:%d", p.DeploymentID, p.GitSHA, p.BuildTime.UnixNano()))
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal provenance: %w", err)
	}
	if err := WriteFileAtomic(s.path(ProvenanceFile), data); err != nil {
		return fmt.Errorf("persist provenance: %w", err)
	}
	return nil
}
