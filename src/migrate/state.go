package migrate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// State is the structured state file as a versioned document. Steps operate
// on copies; the file on disk is only rewritten after a whole migration
// batch succeeds.
type State struct {
	Version  int            `json:"version"`
	Settings map[string]any `json:"settings"`
}

// Clone returns a deep copy so a failed step can never leak a partial
// mutation into the caller's document.
func (s State) Clone() State {
	out := State{Version: s.Version, Settings: make(map[string]any, len(s.Settings))}
	for k, v := range s.Settings {
		out.Settings[k] = v
	}
	return out
}

// LoadState reads the structured state file.
func LoadState(path string) (State, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return State{}, fmt.Errorf("parse state file %s: %w", path, err)
	}
	if s.Version <= 0 {
		return State{}, fmt.Errorf("state file %s has no valid version", path)
	}
	if s.Settings == nil {
		s.Settings = map[string]any{}
	}
	return s, nil
}

// SaveState writes the document atomically (temp file + rename).
func SaveState(s State, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*")
	if err != nil {
		return err
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
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
