package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// defaultIgnorePatterns covers VCS metadata, caches, logs, and the state
// files sentinel itself writes (self-reference would make every verification
// cycle dirty the tree it just fingerprinted).
var defaultIgnorePatterns = []string{
	".git/",
	".hg/",
	".svn/",
	"__pycache__/",
	"node_modules/",
	"logs/",
	"*.log",
	"*.pyc",
	"*.tmp",
	".DS_Store",
	ChecksumsFile,
	MetadataFile,
	ChecksumsSigFile,
	MetadataSigFile,
	ProvenanceFile,
	IgnoreConfigFile,
}

// fingerprintSeparator is non-printable so patterns containing commas,
// newlines or colons cannot collide in the joined fingerprint input.
const fingerprintSeparator = "\x00"

// IgnorePolicy resolves the effective ignore-pattern set from built-in
// defaults, an optional JSON config file, and environment additions.
// The resolved set is deduplicated and sorted so its fingerprint is stable.
type IgnorePolicy struct {
	patterns []string
}

type ignoreConfig struct {
	Patterns []string `json:"patterns"`
}

// NewIgnorePolicy resolves the pattern set once at construction.
// A missing config file is not an error; an unreadable or malformed one is.
func NewIgnorePolicy(configFile string, extra []string) (*IgnorePolicy, error) {
	set := make(map[string]struct{}, len(defaultIgnorePatterns)+len(extra))
	for _, p := range defaultIgnorePatterns {
		set[p] = struct{}{}
	}

	if configFile != "" {
		data, err := os.ReadFile(filepath.Clean(configFile))
		switch {
		case os.IsNotExist(err):
			// optional
		case err != nil:
			return nil, fmt.Errorf("read ignore config: %w", err)
		default:
			var cfg ignoreConfig
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse ignore config %s: %w", configFile, err)
			}
			for _, p := range cfg.Patterns {
				if p = strings.TrimSpace(p); p != "" {
					set[p] = struct{}{}
				}
			}
		}
	}

	for _, p := range extra {
		if p = strings.TrimSpace(p); p != "" {
			set[p] = struct{}{}
		}
	}

	patterns := make([]string, 0, len(set))
	for p := range set {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	return &IgnorePolicy{patterns: patterns}, nil
}

// Patterns returns the resolved pattern set, sorted and deduplicated.
func (p *IgnorePolicy) Patterns() []string {
	out := make([]string, len(p.patterns))
	copy(out, p.patterns)
	return out
}

// ShouldIgnore reports whether the POSIX-style root-relative path is excluded.
// Paths that resolve outside the root are always ignored for safety.
func (p *IgnorePolicy) ShouldIgnore(rel string) bool {
	if rel == "" || rel == "." || path.IsAbs(rel) || strings.HasPrefix(rel, "../") || rel == ".." {
		return true
	}

	for _, pat := range p.patterns {
		if strings.HasSuffix(pat, "/") {
			// Directory pattern: matches the directory at any depth.
			dir := strings.TrimSuffix(pat, "/")
			if rel == dir || strings.HasPrefix(rel, dir+"/") || strings.Contains(rel, "/"+dir+"/") {
				return true
			}
			continue
		}
		if ok, _ := path.Match(pat, rel); ok {
			return true
		}
		if ok, _ := path.Match(pat, path.Base(rel)); ok {
			return true
		}
	}
	return false
}

// Fingerprint hashes the resolved pattern set. Stored in the manifest and
// re-derived on every verification to flag silent policy drift.
func (p *IgnorePolicy) Fingerprint() string {
	sum := sha256.Sum256([]byte(strings.Join(p.patterns, fingerprintSeparator)))
	return hex.EncodeToString(sum[:])
}
