package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// File returns the sha256 hex digest of the file's raw bytes. The digest
// depends only on content, never on timestamps or other metadata.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Bytes returns the sha256 hex digest of b.
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the digest of the file at path and compares it to want
// (case-insensitive hex). A mismatch is returned as an error naming both sums.
func Verify(path, want string) error {
	got, err := File(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("checksum mismatch for %s: want %s, got %s", path, want, got)
	}
	return nil
}
