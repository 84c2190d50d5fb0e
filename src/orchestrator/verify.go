package orchestrator

import (
	"path/filepath"

	"stack-backup/src/manifest"
)

// Verify loads a backup by id or path and checks every manifest entry
// against the files on disk. It needs no runtime connection and mutates
// nothing; an intact backup yields an empty discrepancy list.
func (o *Orchestrator) Verify(ref string) (manifest.Manifest, []manifest.Discrepancy, error) {
	dir, cleanup, err := o.resolveBackupDir(ref)
	if err != nil {
		return manifest.Manifest{}, nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	m, err := manifest.Read(filepath.Join(dir, manifest.FileName))
	if err != nil {
		return manifest.Manifest{}, nil, err
	}
	disc, err := manifest.Verify(m, dir)
	if err != nil {
		return manifest.Manifest{}, nil, err
	}
	return m, disc, nil
}
