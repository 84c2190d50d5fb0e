package migrate

import (
	"context"
	"fmt"
	"io"
)

// Phase is the planner's state machine position.
type Phase string

const (
	PhaseDetect Phase = "detect"
	PhasePlan   Phase = "plan"
	PhaseBackup Phase = "backup"
	PhaseApply  Phase = "apply"
	PhaseDone   Phase = "done"
	PhaseFailed Phase = "failed"
)

// BackupFunc takes a full safety backup and returns its id. The planner
// depends on it as a function so it never imports the orchestrator.
type BackupFunc func(ctx context.Context, description string) (string, error)

// Planner runs detect -> plan -> backup -> apply -> done over the
// structured state file.
type Planner struct {
	StatePath string
	Steps     []Step
	Target    int
	Backup    BackupFunc
	Out       io.Writer
}

// Result reports the terminal phase and what happened on the way there.
type Result struct {
	Phase          Phase    `json:"phase"`
	From           int      `json:"from"`
	To             int      `json:"to"`
	Planned        []string `json:"planned,omitempty"` // step names in order
	Applied        []string `json:"applied,omitempty"`
	SafetyBackupID string   `json:"safetyBackupId,omitempty"`
	NoOp           bool     `json:"noOp"`
}

// Run executes the migration. With dryRun it stops after plan and reports
// the step list without touching anything. On a step failure the state file
// is left exactly as it was and the safety backup id is reported as the
// recovery path.
func (p *Planner) Run(ctx context.Context, dryRun bool) (Result, error) {
	res := Result{Phase: PhaseDetect, To: p.Target}

	// detect
	st, err := LoadState(p.StatePath)
	if err != nil {
		res.Phase = PhaseFailed
		return res, err
	}
	res.From = st.Version
	if st.Version == p.Target {
		// Terminal no-op: re-running migrate at the target version is done.
		res.Phase = PhaseDone
		res.NoOp = true
		p.logf("[migrate] already at version %d, nothing to do\n", p.Target)
		return res, nil
	}

	// plan
	res.Phase = PhasePlan
	steps, err := path(p.Steps, st.Version, p.Target)
	if err != nil {
		res.Phase = PhaseFailed
		return res, err
	}
	for _, s := range steps {
		res.Planned = append(res.Planned, s.Name)
		p.logf("[migrate] plan: %s (%d -> %d)\n", s.Name, s.From, s.To)
	}
	if dryRun {
		return res, nil
	}

	// backup, unconditionally: a failed migration must never leave the
	// installation worse off than before, and this is the recovery path.
	res.Phase = PhaseBackup
	if p.Backup == nil {
		res.Phase = PhaseFailed
		return res, fmt.Errorf("migration requires a safety backup function")
	}
	id, err := p.Backup(ctx, fmt.Sprintf("pre-migration safety backup (v%d -> v%d)", st.Version, p.Target))
	if err != nil {
		res.Phase = PhaseFailed
		return res, fmt.Errorf("safety backup failed, migration not started: %w", err)
	}
	res.SafetyBackupID = id
	p.logf("[migrate] safety backup %s\n", id)

	// apply, strictly in order, on an in-memory copy
	res.Phase = PhaseApply
	doc := st.Clone()
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			res.Phase = PhaseFailed
			return res, err
		}
		next, err := s.Apply(doc)
		if err != nil {
			res.Phase = PhaseFailed
			return res, fmt.Errorf("migration step %q failed, state file untouched, safety backup %s: %w", s.Name, id, err)
		}
		doc = next
		res.Applied = append(res.Applied, s.Name)
		p.logf("[migrate] applied %s\n", s.Name)
	}

	// Write back only after the whole batch succeeded.
	if err := SaveState(doc, p.StatePath); err != nil {
		res.Phase = PhaseFailed
		return res, fmt.Errorf("write migrated state, safety backup %s: %w", id, err)
	}
	res.Phase = PhaseDone
	return res, nil
}

func (p *Planner) logf(format string, args ...any) {
	if p.Out != nil {
		fmt.Fprintf(p.Out, format, args...)
	}
}
