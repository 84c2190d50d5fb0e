package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"stack-backup/src/checksum"
	"stack-backup/src/manifest"
)

// The two persistent configuration artifacts. They are captured and
// restored together: the state file references env-derived settings, so a
// snapshot holding only one of them is useless.
const (
	EnvFileName   = ".env"
	StateFileName = "config.json"

	// envArchiveName is the name the env file is stored under inside a
	// backup directory (no leading dot, so it is a visible backup member).
	envArchiveName = "env"
)

// NotFoundError reports a missing configuration artifact.
type NotFoundError struct {
	File string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("config file not found: %s", e.File)
}

// Snapshot describes a captured config bundle.
type Snapshot struct {
	EnvPath   string // source env file path
	StatePath string // source state file path
}

// Capture copies the env file and structured state file from cfgDir into
// destDir and returns their manifest entries. The snapshot is all or
// nothing: if either file is absent a NotFoundError is returned and nothing
// is written, unless optional is set and *both* are absent, in which case
// the capture is skipped with no entries.
func Capture(cfgDir, destDir string, optional bool) (Snapshot, []manifest.Entry, error) {
	snap := Snapshot{
		EnvPath:   filepath.Join(cfgDir, EnvFileName),
		StatePath: filepath.Join(cfgDir, StateFileName),
	}
	_, envErr := os.Stat(snap.EnvPath)
	_, stateErr := os.Stat(snap.StatePath)
	if os.IsNotExist(envErr) && os.IsNotExist(stateErr) && optional {
		return Snapshot{}, nil, nil
	}
	if envErr != nil {
		return Snapshot{}, nil, &NotFoundError{File: snap.EnvPath}
	}
	if stateErr != nil {
		return Snapshot{}, nil, &NotFoundError{File: snap.StatePath}
	}

	var entries []manifest.Entry
	for _, c := range []struct{ src, dest, logical string }{
		{snap.EnvPath, envArchiveName, EnvFileName},
		{snap.StatePath, StateFileName, StateFileName},
	} {
		destPath := filepath.Join(destDir, c.dest)
		if err := copyFileAtomic(c.src, destPath); err != nil {
			return Snapshot{}, nil, fmt.Errorf("capture %s: %w", c.logical, err)
		}
		info, err := os.Stat(destPath)
		if err != nil {
			return Snapshot{}, nil, err
		}
		sum, err := checksum.File(destPath)
		if err != nil {
			return Snapshot{}, nil, err
		}
		entries = append(entries, manifest.Entry{
			Name:     c.logical,
			Path:     c.dest,
			Size:     info.Size(),
			Checksum: sum,
			Kind:     manifest.KindConfig,
		})
	}
	return snap, entries, nil
}

func copyFileAtomic(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".cfg-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
