// Package signature provides keyed-MAC signing for manifest state files.
// With no key configured the service is disabled: Sign returns "" and Verify
// returns true. Callers must surface "disabled" as a distinct tri-state, not
// as a pass or a failure.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Service signs and verifies byte blobs with HMAC-SHA256.
type Service struct {
	key []byte
}

// New creates a signature service. An empty key disables signing.
func New(key string) *Service {
	if key == "" {
		return &Service{}
	}
	return &Service{key: []byte(key)}
}

// Enabled reports whether a signing key is configured.
func (s *Service) Enabled() bool {
	return len(s.key) > 0
}

// Sign returns the hex MAC of data, or "" when signing is disabled.
func (s *Service) Sign(data []byte) string {
	if !s.Enabled() {
		return ""
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the hex MAC against data. Disabled service always reports
// true (a no-op, distinguished at the call site via Enabled). Comparison is
// constant-time via hmac.Equal.
func (s *Service) Verify(data []byte, hexMAC string) bool {
	if !s.Enabled() {
		return true
	}
	want, err := hex.DecodeString(hexMAC)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(data)
	return hmac.Equal(mac.Sum(nil), want)
}
