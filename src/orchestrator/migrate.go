package orchestrator

import (
	"context"
	"path/filepath"

	cfg "stack-backup/src/backup/config"
	"stack-backup/src/migrate"
	"stack-backup/src/version"
)

// Migrate brings the structured state file up to the current schema
// version, taking a full safety backup before applying any step.
func (o *Orchestrator) Migrate(ctx context.Context, dryRun bool) (migrate.Result, error) {
	p := &migrate.Planner{
		StatePath: filepath.Join(o.Env.ConfigDir, cfg.StateFileName),
		Steps:     migrate.BuiltinSteps(),
		Target:    version.SchemaVersion,
		Out:       o.Out,
		Backup: func(ctx context.Context, description string) (string, error) {
			b, err := o.CreateBackup(ctx, BackupOptions{Description: description})
			if err != nil {
				return "", err
			}
			return b.ID, nil
		},
	}
	return p.Run(ctx, dryRun)
}
