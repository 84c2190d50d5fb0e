package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the manifest file name inside every backup directory.
const FileName = "manifest.json"

// CorruptManifestError indicates the manifest document could not be parsed
// or is missing required fields.
type CorruptManifestError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptManifestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt manifest %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("corrupt manifest %s: %s", e.Path, e.Reason)
}

func (e *CorruptManifestError) Unwrap() error { return e.Err }

// Write serializes the manifest to path. The document is written to a
// temporary file first and renamed into place so a crash never leaves a
// half-written manifest.
func Write(m Manifest, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*")
	if err != nil {
		return err
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Read loads and validates a manifest document.
func Read(path string) (Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return Manifest{}, &CorruptManifestError{Path: path, Reason: "invalid JSON", Err: err}
	}
	if m.BackupID == "" {
		return Manifest{}, &CorruptManifestError{Path: path, Reason: "missing backupId"}
	}
	if m.CreatedAt.IsZero() {
		return Manifest{}, &CorruptManifestError{Path: path, Reason: "missing createdAt"}
	}
	for i, e := range m.Entries {
		if e.Name == "" || e.Path == "" || e.Checksum == "" {
			return Manifest{}, &CorruptManifestError{Path: path, Reason: fmt.Sprintf("entry %d incomplete", i)}
		}
		if e.Kind != KindVolume && e.Kind != KindConfig {
			return Manifest{}, &CorruptManifestError{Path: path, Reason: fmt.Sprintf("entry %d has unknown kind %q", i, e.Kind)}
		}
	}
	return m, nil
}
