package volumes_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"stack-backup/src/backup/volumes"
	"stack-backup/src/dockerapi"
	"stack-backup/src/manifest"
)

func TestArchiveExtract_RoundTrip(t *testing.T) {
	fake := dockerapi.NewFake()
	content := map[string][]byte{
		"data/file1.bin": []byte("VOL-DATA"),
		"nested/x":       []byte{0x00, 0xff, 0x10},
	}
	fake.AddVolume("appdata", nil, content)
	dir := t.TempDir()

	entry, err := volumes.Archive(context.Background(), fake, "appdata", dir, nil)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if entry.Kind != manifest.KindVolume || entry.Name != "appdata" || entry.Path != "appdata.tar.gz" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Size <= 0 || entry.Checksum == "" {
		t.Fatalf("entry missing size/checksum: %+v", entry)
	}

	// Restore into a fresh volume name and compare byte-for-byte.
	if err := volumes.Extract(context.Background(), fake, filepath.Join(dir, entry.Path), "appdata-restored", nil, nil); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	got := fake.Volumes["appdata-restored"]
	if len(got) != len(content) {
		t.Fatalf("restored file count %d, want %d: %v", len(got), len(content), got)
	}
	for name, want := range content {
		if !bytes.Equal(got[name], want) {
			t.Fatalf("restored %s = %q, want %q", name, got[name], want)
		}
	}
}

func TestArchive_MissingVolume(t *testing.T) {
	fake := dockerapi.NewFake()
	_, err := volumes.Archive(context.Background(), fake, "nope", t.TempDir(), nil)
	var nf *dockerapi.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestArchive_HelperFailureLeavesNoPartialFile(t *testing.T) {
	fake := dockerapi.NewFake()
	fake.AddVolume("v", nil, map[string][]byte{"f": []byte("x")})
	fake.FailHelper["v"] = "boom"
	dir := t.TempDir()

	_, err := volumes.Archive(context.Background(), fake, "v", dir, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "v.tar.gz")); !os.IsNotExist(statErr) {
		t.Fatalf("partial archive left behind: %v", statErr)
	}
}

func TestArchive_DiskFullIsTyped(t *testing.T) {
	fake := dockerapi.NewFake()
	fake.AddVolume("v", nil, map[string][]byte{"f": []byte("x")})
	fake.FailHelper["v"] = "tar: write error: No space left on device"
	dir := t.TempDir()

	_, err := volumes.Archive(context.Background(), fake, "v", dir, nil)
	var df *volumes.DiskFullError
	if !errors.As(err, &df) {
		t.Fatalf("expected DiskFullError, got %v", err)
	}
	if df.Volume != "v" {
		t.Fatalf("error names wrong volume: %+v", df)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "v.tar.gz")); !os.IsNotExist(statErr) {
		t.Fatalf("partial archive left behind: %v", statErr)
	}
}

func TestExtract_EmptiesExistingVolume(t *testing.T) {
	fake := dockerapi.NewFake()
	fake.AddVolume("src", nil, map[string][]byte{"keep.txt": []byte("new")})
	dir := t.TempDir()
	entry, err := volumes.Archive(context.Background(), fake, "src", dir, nil)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}

	fake.AddVolume("dst", nil, map[string][]byte{"old.txt": []byte("stale")})
	if err := volumes.Extract(context.Background(), fake, filepath.Join(dir, entry.Path), "dst", nil, nil); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, ok := fake.Volumes["dst"]["old.txt"]; ok {
		t.Fatal("existing content not emptied before extract")
	}
	if string(fake.Volumes["dst"]["keep.txt"]) != "new" {
		t.Fatalf("restored content wrong: %v", fake.Volumes["dst"])
	}
}
