package signature_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/canaryops/sentinel/internal/signature"
)

func TestService_Disabled(t *testing.T) {
	svc := signature.New("")

	assert.False(t, svc.Enabled())
	assert.Empty(t, svc.Sign([]byte("payload")))
	// Disabled verification is a no-op, not a failure.
	assert.True(t, svc.Verify([]byte("payload"), "whatever"))
}

func TestService_SignVerifyRoundtrip(t *testing.T) {
	svc := signature.New("secret-key")
	payload := []byte("manifest bytes")

	mac := svc.Sign(payload)
	assert.NotEmpty(t, mac)
	assert.True(t, svc.Verify(payload, mac))
}

func TestService_VerifyRejectsTamperedPayload(t *testing.T) {
	svc := signature.New("secret-key")
	mac := svc.Sign([]byte("original"))

	assert.False(t, svc.Verify([]byte("altered"), mac))
}

func TestService_VerifyRejectsWrongKey(t *testing.T) {
	mac := signature.New("key-a").Sign([]byte("payload"))
	assert.False(t, signature.New("key-b").Verify([]byte("payload"), mac))
}

func TestService_VerifyRejectsMalformedHex(t *testing.T) {
	svc := signature.New("secret-key")
	assert.False(t, svc.Verify([]byte("payload"), "not-hex!"))
	assert.False(t, svc.Verify([]byte("payload"), ""))
}
