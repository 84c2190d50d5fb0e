package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	cfg "stack-backup/src/backup/config"
	"stack-backup/src/backup/volumes"
	"stack-backup/src/manifest"
	"stack-backup/src/migrate"
	"stack-backup/src/restoreplan"
)

// RestoreFromBackup loads a backup by id or path, verifies its integrity,
// resolves conflicts with the target, and executes the resulting plan. With
// opts.ValidateOnly it performs verification and conflict detection without
// mutating any state.
func (o *Orchestrator) RestoreFromBackup(ctx context.Context, ref string, opts RestoreOptions) (*RestoreResult, error) {
	dir, cleanup, err := o.resolveBackupDir(ref)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	m, err := manifest.Read(filepath.Join(dir, manifest.FileName))
	if err != nil {
		return nil, err
	}
	res := &RestoreResult{BackupID: m.BackupID, ValidateOnly: opts.ValidateOnly}

	// Verify before anything touches the target. Discrepancies abort
	// unless the caller explicitly forces on with warnings.
	disc, err := manifest.Verify(m, dir)
	if err != nil {
		return nil, err
	}
	if len(disc) > 0 {
		if !opts.Force {
			return res, &IntegrityError{Discrepancies: disc}
		}
		for _, d := range disc {
			w := fmt.Sprintf("proceeding despite %s: %s", d.Reason, d.Name)
			res.Warnings = append(res.Warnings, w)
			o.logf("[restore] warning: %s\n", w)
		}
	}

	targetDir := opts.TargetDir
	if targetDir == "" {
		targetDir = o.Env.ConfigDir
	}
	conds, err := o.detectConditions(ctx, m, targetDir)
	if err != nil {
		return nil, err
	}
	res.Plan = restoreplan.Resolve(conds, opts.Force)
	res.RequiresMigration = res.Plan.NeedsMigration

	if opts.ValidateOnly {
		return res, nil
	}

	switch res.Plan.Action {
	case restoreplan.ActionAbort:
		return res, &ConflictError{Reason: res.Plan.Reason}
	case restoreplan.ActionMerge:
		// Reserved variant; nothing produces it yet.
		return res, fmt.Errorf("merge restore is not supported")
	case restoreplan.ActionBackupThenOverwrite:
		// Snapshot the config that is about to be overwritten, which
		// lives at the restore target, not necessarily at Env.ConfigDir.
		safety, err := o.CreateBackup(ctx, BackupOptions{
			Description: fmt.Sprintf("pre-restore safety backup (restoring %s)", m.BackupID),
			ConfigDir:   targetDir,
			ConfigOnly:  true,
		})
		if err != nil {
			return res, fmt.Errorf("pre-restore safety backup: %w", err)
		}
		res.SafetyBackupID = safety.ID
		o.logf("[restore] safety backup %s\n", safety.ID)
	case restoreplan.ActionOverwrite:
		// proceed
	}

	return res, o.executeRestore(ctx, m, dir, targetDir, res)
}

func (o *Orchestrator) executeRestore(ctx context.Context, m manifest.Manifest, dir, targetDir string, res *RestoreResult) error {
	// Config first, sequentially; the plan has authorized overwrite.
	if len(m.ConfigFiles) > 0 {
		o.logf("[restore] %s: restoring config\n", m.BackupID)
		if err := cfg.Restore(dir, targetDir, cfg.ModeOverwrite); err != nil {
			res.Units = append(res.Units, UnitResult{Name: "config", Kind: manifest.KindConfig, Error: err.Error()})
			return err
		}
		for _, name := range m.ConfigFiles {
			res.Units = append(res.Units, UnitResult{Name: name, Kind: manifest.KindConfig})
		}
	}

	// Every volume the manifest declares is required; any failure is fatal
	// for the restore, unlike backup where units fail independently.
	labels := labelMap(o.Env.Label)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Env.Parallel)
	for _, e := range m.Entries {
		if e.Kind != manifest.KindVolume {
			continue
		}
		entry := e
		g.Go(func() error {
			hctx, cancel := context.WithTimeout(gctx, o.Env.HelperTimeout)
			defer cancel()
			err := volumes.Extract(hctx, o.Client, filepath.Join(dir, entry.Path), entry.Name, labels, o.Out)
			mu.Lock()
			defer mu.Unlock()
			u := UnitResult{Name: entry.Name, Kind: manifest.KindVolume}
			if err != nil {
				u.Error = err.Error()
				res.Units = append(res.Units, u)
				return fmt.Errorf("restore volume %s: %w", entry.Name, err)
			}
			res.Units = append(res.Units, u)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if res.RequiresMigration {
		o.logf("[restore] %s: restored at schema v%d; run migrate before starting the stack\n", m.BackupID, m.StackVersion)
	} else {
		o.logf("[restore] %s: complete\n", m.BackupID)
	}
	return nil
}

// detectConditions observes the restore target.
func (o *Orchestrator) detectConditions(ctx context.Context, m manifest.Manifest, targetDir string) (restoreplan.Conditions, error) {
	var c restoreplan.Conditions

	running, err := o.Client.RunningServices(ctx, o.Env.Label)
	if err != nil {
		return c, err
	}
	c.StackRunning = len(running) > 0

	for _, name := range []string{cfg.EnvFileName, cfg.StateFileName} {
		if _, err := os.Stat(filepath.Join(targetDir, name)); err == nil {
			c.ConfigExists = true
			break
		}
	}

	if st, err := migrate.LoadState(filepath.Join(targetDir, cfg.StateFileName)); err == nil {
		c.VersionMismatch = m.StackVersion != 0 && st.Version != m.StackVersion
	}
	return c, nil
}

// resolveBackupDir turns an id or path into a backup directory, unpacking
// compressed backups into a temp dir. The returned cleanup removes any temp
// dir created.
func (o *Orchestrator) resolveBackupDir(ref string) (string, func(), error) {
	candidate := ref
	if info, err := os.Stat(candidate); err == nil {
		if info.IsDir() {
			return candidate, nil, nil
		}
	} else {
		// Not a path; treat as an id under the default backup dir.
		candidate = filepath.Join(o.Env.BackupDir, ref)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil, nil
		}
		candidate += ".tar.gz"
		if _, err := os.Stat(candidate); err != nil {
			return "", nil, fmt.Errorf("backup not found: %s", ref)
		}
	}
	if !strings.HasSuffix(candidate, ".tar.gz") {
		return "", nil, fmt.Errorf("not a backup directory or archive: %s", ref)
	}

	tmp, err := os.MkdirTemp("", "stack-backup-restore-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.RemoveAll(tmp) }
	if err := untarGz(candidate, tmp); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("unpack %s: %w", candidate, err)
	}
	// The archive wraps a single <id>/ directory.
	entries, err := os.ReadDir(tmp)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			return filepath.Join(tmp, e.Name()), cleanup, nil
		}
	}
	cleanup()
	return "", nil, fmt.Errorf("no backup directory inside %s", candidate)
}
