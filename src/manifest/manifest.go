package manifest

import "time"

// Kind constants for manifest entries.
const (
	KindVolume = "volume"
	KindConfig = "config"
)

// Entry describes one archived unit inside a backup: a volume archive or a
// captured config file. Entries are written once and never mutated.
type Entry struct {
	Name     string `json:"name"`     // logical name (volume name or config file name)
	Path     string `json:"path"`     // path relative to the backup directory
	Size     int64  `json:"size"`     // archive size in bytes
	Checksum string `json:"checksum"` // sha256 of the raw archive bytes
	Kind     string `json:"kind"`     // volume|config
}

// Manifest is the index of a backup's contents plus global metadata.
// Invariant: the entry set must exactly match the set of files physically
// present next to the manifest, and every declared checksum must match the
// file's computed checksum.
type Manifest struct {
	BackupID     string    `json:"backupId"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	ToolVersion  string    `json:"toolVersion"`
	StackVersion int       `json:"stackVersion"` // structured state schema version at backup time
	Compressed   bool      `json:"compressed"`
	Volumes      []string  `json:"volumes"`
	ConfigFiles  []string  `json:"configFiles"`
	Entries      []Entry   `json:"entries"`
}

// Metadata carries the global fields used when assembling a manifest.
type Metadata struct {
	BackupID     string
	Description  string
	CreatedAt    time.Time
	ToolVersion  string
	StackVersion int
	Compressed   bool
}

// Build assembles a Manifest from entries plus global metadata. The volume
// and config file lists are derived from the entries themselves so they can
// never disagree with the entry set.
func Build(entries []Entry, meta Metadata) Manifest {
	m := Manifest{
		BackupID:     meta.BackupID,
		Description:  meta.Description,
		CreatedAt:    meta.CreatedAt.UTC(),
		ToolVersion:  meta.ToolVersion,
		StackVersion: meta.StackVersion,
		Compressed:   meta.Compressed,
		Volumes:      []string{},
		ConfigFiles:  []string{},
		Entries:      entries,
	}
	for _, e := range entries {
		switch e.Kind {
		case KindVolume:
			m.Volumes = append(m.Volumes, e.Name)
		case KindConfig:
			m.ConfigFiles = append(m.ConfigFiles, e.Name)
		}
	}
	return m
}

// Entry returns the entry with the given logical name, if present.
func (m Manifest) Entry(name string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}
