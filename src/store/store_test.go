package store_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"stack-backup/src/manifest"
	"stack-backup/src/store"
)

func TestList_EmptyOrMissingRoot(t *testing.T) {
	entries, err := store.List(filepath.Join(t.TempDir(), "nope"))
	if err != nil || entries != nil {
		t.Fatalf("missing root: entries=%v err=%v", entries, err)
	}
}

func TestList_DirectoriesAndArchives(t *testing.T) {
	root := t.TempDir()

	dir := filepath.Join(root, "20250601T120001Z")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	m := manifest.Build([]manifest.Entry{
		{Name: "a", Path: "a.tar.gz", Size: 1, Checksum: "x", Kind: manifest.KindVolume},
	}, manifest.Metadata{
		BackupID:    "20250601T120001Z",
		Description: "nightly",
		CreatedAt:   time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC),
	})
	if err := manifest.Write(m, filepath.Join(dir, manifest.FileName)); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "20250601T120002Z.tar.gz"), []byte("gz"), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	// A directory without a manifest is listed as broken, not hidden.
	if err := os.MkdirAll(filepath.Join(root, "20250601T120003Z"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	entries, err := store.List(root)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3: %+v", len(entries), entries)
	}
	if entries[0].Description != "nightly" || entries[0].Volumes != 1 {
		t.Fatalf("manifest detail missing: %+v", entries[0])
	}
	if !entries[1].Compressed || entries[1].ID != "20250601T120002Z" {
		t.Fatalf("archive entry wrong: %+v", entries[1])
	}
	if entries[2].Broken == "" {
		t.Fatalf("manifest-less dir not flagged: %+v", entries[2])
	}
}
