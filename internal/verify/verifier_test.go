package verify_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canaryops/sentinel/internal/manifest"
	"github.com/canaryops/sentinel/internal/signature"
	"github.com/canaryops/sentinel/internal/verify"
)

type fixture struct {
	root    string
	store   *manifest.Store
	signer  *signature.Service
	builder *manifest.Builder
	cfg     verify.Config
}

func newFixture(t *testing.T, files map[string]string, signingKey string) *fixture {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	policy, err := manifest.NewIgnorePolicy("", nil)
	require.NoError(t, err)

	f := &fixture{
		root:    root,
		store:   manifest.NewStore(filepath.Join(t.TempDir(), "state")),
		signer:  signature.New(signingKey),
		builder: manifest.NewBuilder(root, "sha256", "strict", policy),
		cfg: verify.Config{
			Mode:          "strict",
			SpikeFraction: 0.3,
		},
	}
	return f
}

func (f *fixture) snapshot(t *testing.T) {
	t.Helper()
	m, _, err := f.builder.Build(context.Background(), "v1")
	require.NoError(t, err)
	require.NoError(t, f.store.Save(m, f.signer))
}

func (f *fixture) verifier() *verify.Verifier {
	return verify.New(f.store, f.builder, f.signer, f.cfg)
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.root, filepath.FromSlash(rel)), []byte(content), 0o644))
}

func TestVerifier_RoundtripVerified(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "hello", "b.txt": "world"}, "")
	f.snapshot(t)

	res := f.verifier().Verify(context.Background())

	assert.Equal(t, verify.StatusVerified, res.Status)
	assert.True(t, res.IntegrityVerified)
	assert.Empty(t, res.ModifiedFiles)
	assert.Empty(t, res.MissingFiles)
	assert.Empty(t, res.NewFiles)
	// No signing key configured: tri-state nil, never false.
	assert.Nil(t, res.Signatures.ChecksumsHMACOK)
	assert.Nil(t, res.Signatures.MetadataHMACOK)
}

func TestVerifier_ModifiedFileIsCorrupted(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "hello", "b.txt": "world"}, "")
	f.snapshot(t)

	f.write(t, "a.txt", "tampered")
	res := f.verifier().Verify(context.Background())

	assert.Equal(t, verify.StatusCorrupted, res.Status)
	assert.False(t, res.IntegrityVerified)
	assert.Equal(t, []string{"a.txt"}, res.ModifiedFiles)
}

func TestVerifier_MissingFileIsCorrupted(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "hello", "b.txt": "world"}, "")
	f.snapshot(t)

	require.NoError(t, os.Remove(filepath.Join(f.root, "b.txt")))
	res := f.verifier().Verify(context.Background())

	assert.Equal(t, verify.StatusCorrupted, res.Status)
	assert.Equal(t, []string{"b.txt"}, res.MissingFiles)
}

func TestVerifier_NewFileStrictModeIsCorrupted(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "hello"}, "")
	f.snapshot(t)

	f.write(t, "new.txt", "surprise")
	res := f.verifier().Verify(context.Background())

	assert.Equal(t, verify.StatusCorrupted, res.Status)
	assert.Equal(t, []string{"new.txt"}, res.NewFiles)
}

func TestVerifier_LenientModeToleratesNewFiles(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "hello"}, "")
	f.cfg.Mode = "lenient"
	f.cfg.MaxNewFiles = -1 // unlimited
	f.builder = lenientBuilder(t, f.root)
	f.snapshot(t)

	f.write(t, "new.txt", "surprise")
	res := f.verifier().Verify(context.Background())

	assert.Equal(t, verify.StatusVerified, res.Status)
	assert.Equal(t, []string{"new.txt"}, res.NewFiles, "tolerated files are still reported")
}

func TestVerifier_LenientModeBoundedNewFiles(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "hello"}, "")
	f.cfg.Mode = "lenient"
	f.cfg.MaxNewFiles = 1
	f.builder = lenientBuilder(t, f.root)
	f.snapshot(t)

	f.write(t, "n1.txt", "x")
	f.write(t, "n2.txt", "y")
	res := f.verifier().Verify(context.Background())

	assert.Equal(t, verify.StatusCorrupted, res.Status)
}

func lenientBuilder(t *testing.T, root string) *manifest.Builder {
	t.Helper()
	policy, err := manifest.NewIgnorePolicy("", nil)
	require.NoError(t, err)
	return manifest.NewBuilder(root, "sha256", "lenient", policy)
}

func TestVerifier_IgnoreDriftIsPolicyChanged(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "hello", "b.txt": "world"}, "")
	f.snapshot(t)

	// Same tree, different effective ignore set.
	policy, err := manifest.NewIgnorePolicy("", []string{"b.txt"})
	require.NoError(t, err)
	f.builder = manifest.NewBuilder(f.root, "sha256", "strict", policy)

	res := f.verifier().Verify(context.Background())

	assert.Equal(t, verify.StatusPolicyChanged, res.Status)
	assert.True(t, res.IgnoreInfo.Mismatch)
	assert.False(t, res.IntegrityVerified)
}

func TestVerifier_HashAlgorithmDriftIsPolicyChangedInStrict(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "hello"}, "")
	f.snapshot(t)

	policy, err := manifest.NewIgnorePolicy("", nil)
	require.NoError(t, err)
	f.builder = manifest.NewBuilder(f.root, "sha512", "strict", policy)

	res := f.verifier().Verify(context.Background())
	assert.Equal(t, verify.StatusPolicyChanged, res.Status)
}

func TestVerifier_TamperedChecksumFile(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "hello"}, "signing-key")
	f.snapshot(t)

	// Alter the persisted checksum file itself: signature must flag it and
	// outrank every other classification.
	csPath := filepath.Join(f.store.Dir(), manifest.ChecksumsFile)
	data, err := os.ReadFile(csPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(csPath, append(data, '\n'), 0o644))

	res := f.verifier().Verify(context.Background())

	assert.Equal(t, verify.StatusTampered, res.Status)
	require.NotNil(t, res.Signatures.ChecksumsHMACOK)
	assert.False(t, *res.Signatures.ChecksumsHMACOK)
	require.NotNil(t, res.Signatures.MetadataHMACOK)
	assert.True(t, *res.Signatures.MetadataHMACOK)
}

func TestVerifier_SignaturesValidWhenUntouched(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "hello"}, "signing-key")
	f.snapshot(t)

	res := f.verifier().Verify(context.Background())

	assert.Equal(t, verify.StatusVerified, res.Status)
	require.NotNil(t, res.Signatures.ChecksumsHMACOK)
	assert.True(t, *res.Signatures.ChecksumsHMACOK)
}

func TestVerifier_MissingBaseline(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "hello"}, "")

	res := f.verifier().Verify(context.Background())
	assert.Equal(t, verify.StatusNoChecksums, res.Status)
	assert.False(t, res.IntegrityVerified)
}

func TestVerifier_MissingMetadata(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "hello"}, "")
	f.snapshot(t)
	require.NoError(t, os.Remove(filepath.Join(f.store.Dir(), manifest.MetadataFile)))

	res := f.verifier().Verify(context.Background())
	assert.Equal(t, verify.StatusNoMetadata, res.Status)
}

func TestVerifier_CorruptBaselineIsErrorStatus(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "hello"}, "")
	f.snapshot(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.store.Dir(), manifest.ChecksumsFile), []byte("{broken"), 0o644))

	res := f.verifier().Verify(context.Background())

	// Never throws: parse failures surface as error status with the message attached.
	assert.Equal(t, verify.StatusError, res.Status)
	assert.NotEmpty(t, res.Err)
}

func TestVerifier_SpikeGuardProductionOnly(t *testing.T) {
	files := map[string]string{}
	for _, name := range []string{"f1", "f2", "f3", "f4", "f5"} {
		files[name+".txt"] = name
	}

	mutate := func(t *testing.T, f *fixture) {
		// Mass churn in both directions: >30% missing and >30% new.
		require.NoError(t, os.Remove(filepath.Join(f.root, "f1.txt")))
		require.NoError(t, os.Remove(filepath.Join(f.root, "f2.txt")))
		f.write(t, "g1.txt", "a")
		f.write(t, "g2.txt", "b")
	}

	t.Run("production escalates to corrupted", func(t *testing.T) {
		f := newFixture(t, files, "")
		f.cfg.Production = true
		f.snapshot(t)
		mutate(t, f)

		res := f.verifier().Verify(context.Background())
		assert.Equal(t, verify.StatusCorrupted, res.Status)
	})

	t.Run("lenient development tolerates churn below corruption rules", func(t *testing.T) {
		f := newFixture(t, files, "")
		f.cfg.Production = false
		f.cfg.Mode = "lenient"
		f.cfg.MaxNewFiles = -1
		f.builder = lenientBuilder(t, f.root)
		f.snapshot(t)

		// New files only: no missing, so without the spike guard this is clean.
		f.write(t, "g1.txt", "a")
		f.write(t, "g2.txt", "b")
		f.write(t, "g3.txt", "c")

		res := f.verifier().Verify(context.Background())
		assert.Equal(t, verify.StatusVerified, res.Status)
	})
}

func TestVerifier_EndToEndScenario(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "hello", "b.txt": "world"}, "")
	f.snapshot(t)

	res := f.verifier().Verify(context.Background())
	require.Equal(t, verify.StatusVerified, res.Status)

	// Tamper with a.txt.
	f.write(t, "a.txt", "tampered")
	res = f.verifier().Verify(context.Background())
	require.Equal(t, verify.StatusCorrupted, res.Status)
	require.Equal(t, []string{"a.txt"}, res.ModifiedFiles)

	// Restore, then change the ignore policy to exclude b.txt.
	f.write(t, "a.txt", "hello")
	policy, err := manifest.NewIgnorePolicy("", []string{"b.txt"})
	require.NoError(t, err)
	f.builder = manifest.NewBuilder(f.root, "sha256", "strict", policy)

	res = f.verifier().Verify(context.Background())
	assert.Equal(t, verify.StatusPolicyChanged, res.Status)
	assert.True(t, res.IgnoreInfo.Mismatch)
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range []verify.Status{
		verify.StatusVerified, verify.StatusCorrupted, verify.StatusPolicyChanged,
		verify.StatusTampered, verify.StatusError, verify.StatusNoChecksums, verify.StatusNoMetadata,
	} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, verify.Status("bogus").Valid())
}
