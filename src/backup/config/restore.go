package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Mode controls how Restore treats existing files at the target.
type Mode int

const (
	// ModeOverwrite replaces existing config files.
	ModeOverwrite Mode = iota
	// ModeFailIfExists refuses to touch a target that already has either
	// config file.
	ModeFailIfExists
)

// Restore writes the captured config bundle from backupDir into targetDir.
// Each file is written to a temporary file and atomically renamed into
// place, so a crash mid-restore never leaves a half-written config.
func Restore(backupDir, targetDir string, mode Mode) error {
	pairs := []struct{ archived, target string }{
		{envArchiveName, EnvFileName},
		{StateFileName, StateFileName},
	}
	for _, p := range pairs {
		if _, err := os.Stat(filepath.Join(backupDir, p.archived)); err != nil {
			return &NotFoundError{File: filepath.Join(backupDir, p.archived)}
		}
	}
	if mode == ModeFailIfExists {
		for _, p := range pairs {
			if _, err := os.Stat(filepath.Join(targetDir, p.target)); err == nil {
				return fmt.Errorf("config file already exists: %s", filepath.Join(targetDir, p.target))
			}
		}
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return err
	}
	for _, p := range pairs {
		if err := copyFileAtomic(filepath.Join(backupDir, p.archived), filepath.Join(targetDir, p.target)); err != nil {
			return fmt.Errorf("restore %s: %w", p.target, err)
		}
	}
	return nil
}
