// Package restoreplan decides what a restore is allowed to do to its
// target. The resolver is a pure function over the observed target state;
// executing the plan is the orchestrator's job.
package restoreplan

// Status names the dominant conflict condition at the restore target.
type Status string

const (
	StatusNone            Status = "none"
	StatusConfigExists    Status = "config_exists"
	StatusStackRunning    Status = "stack_running"
	StatusVersionMismatch Status = "version_mismatch"
)

// Action is the closed set of resolved restore actions. The orchestrator
// consumes it exhaustively; adding a new conflict kind means adding a
// variant here and handling it there.
type Action int

const (
	ActionAbort Action = iota
	ActionOverwrite
	ActionMerge // reserved; current rules never produce it
	ActionBackupThenOverwrite
)

func (a Action) String() string {
	switch a {
	case ActionAbort:
		return "abort"
	case ActionOverwrite:
		return "overwrite"
	case ActionMerge:
		return "merge"
	case ActionBackupThenOverwrite:
		return "backup_then_overwrite"
	}
	return "unknown"
}

// Conditions captures the observed state of the restore target.
type Conditions struct {
	StackRunning    bool
	ConfigExists    bool
	VersionMismatch bool
}

// Plan is the resolved outcome for one restore invocation. It is computed
// fresh every time and never persisted.
type Plan struct {
	Status         Status
	Action         Action
	SafetyBackup   bool // back up current config before overwriting
	NeedsMigration bool // run the migration planner after restore
	Reason         string
}

// Resolve applies the conflict rules in priority order:
//
//  1. Running stack without force aborts; restore never competes with a
//     live stack silently.
//  2. Existing config without force is backed up before being overwritten,
//     never silently clobbered.
//  3. A schema version mismatch marks the plan as requiring migration
//     before the stack may start again.
//  4. Otherwise plain overwrite.
//
// force downgrades rules 1 and 2 to plain overwrite; it never disables the
// migration requirement.
func Resolve(c Conditions, force bool) Plan {
	p := Plan{Status: StatusNone, Action: ActionOverwrite}
	switch {
	case c.StackRunning:
		p.Status = StatusStackRunning
	case c.ConfigExists:
		p.Status = StatusConfigExists
	case c.VersionMismatch:
		p.Status = StatusVersionMismatch
	}
	if c.VersionMismatch {
		p.NeedsMigration = true
	}

	if c.StackRunning && !force {
		p.Action = ActionAbort
		p.Reason = string(StatusStackRunning)
		return p
	}
	if c.ConfigExists && !force {
		p.Action = ActionBackupThenOverwrite
		p.SafetyBackup = true
		p.Reason = string(StatusConfigExists)
		return p
	}
	if c.VersionMismatch {
		p.Reason = string(StatusVersionMismatch)
	}
	return p
}
