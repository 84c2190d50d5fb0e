package checksum_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"stack-backup/src/checksum"
)

func TestFile_MatchesBytesDigest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	content := []byte("stack-backup checksum probe")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := checksum.File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if want := checksum.Bytes(content); got != want {
		t.Fatalf("digest mismatch: file=%s bytes=%s", got, want)
	}
}

func TestFile_IndependentOfTimestamps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(path, []byte("same content"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	first, err := checksum.File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	second, err := checksum.File(path)
	if err != nil {
		t.Fatalf("File after chtimes: %v", err)
	}
	if first != second {
		t.Fatalf("digest changed with mtime: %s vs %s", first, second)
	}
}

func TestVerify_ReportsMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := checksum.Verify(path, checksum.Bytes([]byte("abc"))); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := checksum.Verify(path, checksum.Bytes([]byte("abd"))); err == nil {
		t.Fatal("expected mismatch error, got nil")
	}
}
