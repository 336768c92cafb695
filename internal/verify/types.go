package verify

import (
	"time"
)

// Status classifies the outcome of a verification pass.
type Status string

const (
	StatusVerified      Status = "verified"
	StatusCorrupted     Status = "corrupted"
	StatusPolicyChanged Status = "policy_changed"
	StatusTampered      Status = "tampered"
	StatusError         Status = "error"
	StatusNoChecksums   Status = "no_checksums"
	StatusNoMetadata    Status = "no_metadata"
)

// Valid returns true if the status is known.
func (s Status) Valid() bool {
	switch s {
	case StatusVerified, StatusCorrupted, StatusPolicyChanged, StatusTampered,
		StatusError, StatusNoChecksums, StatusNoMetadata:
		return true
	default:
		return false
	}
}

// Fatal reports whether the status should block a release on its own.
// no_checksums/no_metadata mean "never deployed", which callers handle
// separately from tampering.
func (s Status) Fatal() bool {
	switch s {
	case StatusCorrupted, StatusTampered, StatusError:
		return true
	default:
		return false
	}
}

// Signatures carries the tri-state signature outcomes: nil means signing is
// disabled, which dashboards must not conflate with "passed" or "failed".
type Signatures struct {
	ChecksumsHMACOK *bool `json:"checksums_hmac_ok"`
	MetadataHMACOK  *bool `json:"metadata_hmac_ok"`
}

// IgnoreInfo reports ignore-policy drift between baseline and current scan.
type IgnoreInfo struct {
	CurrentHash  string `json:"current_hash"`
	ManifestHash string `json:"manifest_hash"`
	Mismatch     bool   `json:"mismatch"`
}

// Summary carries the counts and scan cost of a verification pass.
type Summary struct {
	BaselineFileCount int   `json:"baseline_file_count"`
	CurrentFileCount  int   `json:"current_file_count"`
	ModifiedCount     int   `json:"modified_count"`
	MissingCount      int   `json:"missing_count"`
	NewCount          int   `json:"new_count"`
	ScanDurationMS    int64 `json:"scan_duration_ms"`
	BytesHashed       int64 `json:"bytes_hashed"`
}

// Result is the outcome of comparing a fresh filesystem scan against the
// stored baseline manifest. Computed fresh on every call, never persisted.
//
// Invariant: IntegrityVerified == true iff Status == StatusVerified.
type Result struct {
	Status            Status     `json:"status"`
	IntegrityVerified bool       `json:"integrity_verified"`
	DeploymentID      string     `json:"deployment_id,omitempty"`
	ModifiedFiles     []string   `json:"modified_files"`
	MissingFiles      []string   `json:"missing_files"`
	NewFiles          []string   `json:"new_files"`
	Signatures        Signatures `json:"signatures"`
	IgnoreInfo        IgnoreInfo `json:"ignore_info"`
	Summary           Summary    `json:"summary"`
	CheckedAt         time.Time  `json:"checked_at"`
	Err               string     `json:"error,omitempty"`
}
