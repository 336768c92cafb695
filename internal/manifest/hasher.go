package manifest

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
)

// hashChunkSize bounds memory per file regardless of file size.
const hashChunkSize = 1 << 20 // 1 MiB

// HashFile streams the file at path through the selected digest and returns
// the hex digest plus the number of bytes read. Callers treat an error as
// "exclude this file from the manifest", not as a scan-fatal condition.
func HashFile(path, algo string) (string, int64, error) {
	var h hash.Hash
	switch algo {
	case "sha512":
		h = sha512.New()
	case "sha256", "":
		h = sha256.New()
	default:
		return "", 0, fmt.Errorf("unsupported hash algorithm %q", algo)
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	n, err := io.CopyBuffer(h, f, make([]byte, hashChunkSize))
	if err != nil {
		return "", n, fmt.Errorf("read %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), n, nil
}
