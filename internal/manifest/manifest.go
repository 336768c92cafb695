// Package manifest builds and persists content-addressed manifests of a
// deployed file tree. A manifest is created once per deployment, written
// atomically, and only ever superseded by the next deployment's manifest.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SchemaVersion is bumped on incompatible manifest layout changes.
const SchemaVersion = 1

// HashVersion is bumped when the digest procedure changes for a given algorithm.
const HashVersion = 1

// State file names under the data directory.
const (
	ChecksumsFile    = "checksums.json"
	MetadataFile     = "deployment_metadata.json"
	ChecksumsSigFile = "checksums.sig"
	MetadataSigFile  = "deployment_metadata.sig"
	ProvenanceFile   = "provenance.json"
	IgnoreConfigFile = ".sentinelignore.json"
)

// Manifest describes the expected state of a deployed file tree.
// Checksums are persisted separately (checksums.json); the remaining fields
// form deployment_metadata.json.
type Manifest struct {
	DeploymentID  string    `json:"deployment_id"`
	SchemaVersion int       `json:"schema_version"`
	HashAlgorithm string    `json:"hash_algorithm"`
	HashVersion   int       `json:"hash_version"`
	Mode          string    `json:"mode"`
	IgnoreHash    string    `json:"ignore_hash"`
	FileCount     int       `json:"file_count"`
	CreatedAt     time.Time `json:"created_at"`

	Checksums map[string]string `json:"-"`
}

// Provenance records build attribution for a deployment, with a signature
// binding the attributed fields when signing is enabled.
type Provenance struct {
	DeploymentID string    `json:"deployment_id"`
	GitSHA       string    `json:"git_sha"`
	BuildTime    time.Time `json:"build_time"`
	Signature    string    `json:"signature,omitempty"`
}

// Signer is the subset of the signature service the manifest store needs.
// A disabled signer reports Enabled() == false and is never asked to sign.
type Signer interface {
	Enabled() bool
	Sign(data []byte) string
}

// NewDeploymentID derives an opaque deployment identifier from the version
// string and creation time. Stable length, hex, safe in paths and logs.
func NewDeploymentID(version string, createdAt time.Time) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%d", version, createdAt.UnixNano()))
	return hex.EncodeToString(sum[:])[:12]
}
