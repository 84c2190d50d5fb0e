// Package store lists the backups present under a backup root directory.
// The on-disk layout is one directory per backup id (or a single
// <id>.tar.gz when compressed) and is stable across tool versions.
package store

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"stack-backup/src/manifest"
)

// Entry is one discovered backup.
type Entry struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	Compressed  bool      `json:"compressed"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	Description string    `json:"description,omitempty"`
	Volumes     int       `json:"volumes"`
	ConfigFiles int       `json:"configFiles"`
	Broken      string    `json:"broken,omitempty"` // manifest problem, if any
}

const archiveSuffix = ".tar.gz"

// List scans root for backup directories and compressed backup archives,
// sorted by id (timestamp order). A missing root is an empty list, not an
// error. Compressed backups are listed without opening them; their manifest
// detail shows up after decompression at restore time.
func List(root string) ([]Entry, error) {
	dirents, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []Entry
	for _, de := range dirents {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(root, name)
		switch {
		case de.IsDir():
			e := Entry{ID: name, Path: full}
			m, err := manifest.Read(filepath.Join(full, manifest.FileName))
			if err != nil {
				e.Broken = err.Error()
			} else {
				e.CreatedAt = m.CreatedAt
				e.Description = m.Description
				e.Volumes = len(m.Volumes)
				e.ConfigFiles = len(m.ConfigFiles)
			}
			entries = append(entries, e)
		case strings.HasSuffix(name, archiveSuffix):
			entries = append(entries, Entry{
				ID:         strings.TrimSuffix(name, archiveSuffix),
				Path:       full,
				Compressed: true,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}
