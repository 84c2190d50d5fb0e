package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	cfg "stack-backup/src/backup/config"
	"stack-backup/src/backup/volumes"
	"stack-backup/src/manifest"
	"stack-backup/src/migrate"
	"stack-backup/src/version"
)

// idFormat is the timestamp-derived backup id layout.
const idFormat = "20060102T150405Z"

// CreateBackup produces a point-in-time backup: config snapshot, one
// archive per label-discovered volume, and a manifest indexing everything
// that succeeded.
//
// Partial-failure policy: one volume failing does not abort its siblings.
// Failed units are reported in the returned Backup and excluded from the
// manifest, so the backup stays usable for what succeeded. Config capture
// failure and host filesystem errors are fatal: partial files are removed
// and an error is returned.
func (o *Orchestrator) CreateBackup(ctx context.Context, opts BackupOptions) (*Backup, error) {
	now := o.Now().UTC()
	id := now.Format(idFormat)
	root := opts.TargetDir
	if root == "" {
		root = o.Env.BackupDir
	}
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	fail := func(err error) (*Backup, error) {
		os.RemoveAll(dir)
		return nil, err
	}

	cfgDir := opts.ConfigDir
	if cfgDir == "" {
		cfgDir = o.Env.ConfigDir
	}
	stackVersion := 0
	if st, err := migrate.LoadState(filepath.Join(cfgDir, cfg.StateFileName)); err == nil {
		stackVersion = st.Version
	}

	b := &Backup{
		ID:          id,
		Path:        dir,
		Description: opts.Description,
		CreatedAt:   now,
		Compressed:  opts.Compress,
	}
	var entries []manifest.Entry

	// Config snapshot first, strictly sequential relative to the volume
	// work bundled under the same backup id.
	o.logf("[backup] %s: capturing config\n", id)
	_, cfgEntries, err := cfg.Capture(cfgDir, dir, opts.ConfigOptional)
	if err != nil {
		return fail(fmt.Errorf("config capture: %w", err))
	}
	entries = append(entries, cfgEntries...)
	for _, e := range cfgEntries {
		b.Units = append(b.Units, UnitResult{Name: e.Name, Kind: manifest.KindConfig})
	}

	if !opts.ConfigOnly {
		vols, err := o.Client.ListVolumes(ctx, o.Env.Label)
		if err != nil {
			return fail(err)
		}
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.Env.Parallel)
		for _, v := range vols {
			vol := v.Name
			g.Go(func() error {
				// A cancelled context stops launching further helpers;
				// failures stay unit-scoped and never cancel siblings.
				if err := gctx.Err(); err != nil {
					return err
				}
				hctx, cancel := context.WithTimeout(gctx, o.Env.HelperTimeout)
				defer cancel()
				entry, err := volumes.Archive(hctx, o.Client, vol, dir, o.Out)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					// A full destination disk dooms the siblings too:
					// abort the whole backup instead of limping on.
					var df *volumes.DiskFullError
					if errors.As(err, &df) {
						return err
					}
					o.logf("[backup] %s: volume %s failed: %v\n", id, vol, err)
					b.Units = append(b.Units, UnitResult{Name: vol, Kind: manifest.KindVolume, Error: err.Error()})
					return nil
				}
				entries = append(entries, entry)
				b.Units = append(b.Units, UnitResult{Name: vol, Kind: manifest.KindVolume})
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return fail(err)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	sort.Slice(b.Units, func(i, j int) bool { return b.Units[i].Name < b.Units[j].Name })

	// The manifest lists successfully archived units only.
	b.Manifest = manifest.Build(entries, manifest.Metadata{
		BackupID:     id,
		Description:  opts.Description,
		CreatedAt:    now,
		ToolVersion:  version.Version,
		StackVersion: stackVersion,
		Compressed:   opts.Compress,
	})
	if err := manifest.Write(b.Manifest, filepath.Join(dir, manifest.FileName)); err != nil {
		return fail(fmt.Errorf("write manifest: %w", err))
	}

	if opts.Compress {
		archivePath := dir + ".tar.gz"
		o.logf("[backup] %s: compressing to %s\n", id, filepath.Base(archivePath))
		if err := tarGzDir(dir, archivePath, o.Out); err != nil {
			os.Remove(archivePath)
			return fail(fmt.Errorf("compress backup: %w", err))
		}
		if err := os.RemoveAll(dir); err != nil {
			return nil, err
		}
		b.Path = archivePath
	}

	if failed := b.FailedUnits(); len(failed) > 0 {
		o.logf("[backup] %s: completed with %d failed unit(s)\n", id, len(failed))
	} else {
		o.logf("[backup] %s: complete\n", id)
	}
	return b, nil
}
