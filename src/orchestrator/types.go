package orchestrator

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"stack-backup/src/dockerapi"
	"stack-backup/src/manifest"
	"stack-backup/src/restoreplan"
	"stack-backup/src/stack"
)

// Orchestrator sequences config snapshots, volume archiving, manifest
// writing, conflict resolution, and migration into the backup, restore, and
// migrate workflows. It owns Backup and RestoreResult lifecycles; nothing
// below it decides whether an error aborts the whole operation.
type Orchestrator struct {
	Client dockerapi.Client
	Env    stack.Environment
	Out    io.Writer // progress/log sink, may be nil

	// Now is the clock used for backup ids; overridable in tests.
	Now func() time.Time
}

// New returns an orchestrator with the default clock. The output writer is
// wrapped so parallel volume workers can log through it concurrently.
func New(client dockerapi.Client, env stack.Environment, out io.Writer) *Orchestrator {
	if out != nil {
		out = &syncWriter{w: out}
	}
	return &Orchestrator{Client: client, Env: env, Out: out, Now: time.Now}
}

// syncWriter serializes writes to a shared progress/log sink.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// BackupOptions controls create_backup.
type BackupOptions struct {
	Description    string
	Compress       bool
	TargetDir      string // defaults to Env.BackupDir
	ConfigDir      string // config capture source; defaults to Env.ConfigDir
	ConfigOptional bool   // allow a backup of a stack that has no config yet
	ConfigOnly     bool   // skip volumes (used for pre-restore safety backups)
}

// RestoreOptions controls restore_from_backup.
type RestoreOptions struct {
	TargetDir    string // config restore target; defaults to Env.ConfigDir
	ValidateOnly bool
	Force        bool
}

// UnitResult is the per-unit outcome of a backup or restore.
type UnitResult struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"` // volume|config
	Error string `json:"error,omitempty"`
}

// OK reports whether the unit succeeded.
func (u UnitResult) OK() bool { return u.Error == "" }

// Backup is the descriptor returned by create_backup. Immutable once
// returned; the on-disk artifact is only ever deleted externally.
type Backup struct {
	ID          string            `json:"id"`
	Path        string            `json:"path"` // backup directory, or archive file when compressed
	Description string            `json:"description,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	Compressed  bool              `json:"compressed"`
	Manifest    manifest.Manifest `json:"manifest"`
	Units       []UnitResult      `json:"units"`
}

// FailedUnits returns the units that did not make it into the manifest.
func (b *Backup) FailedUnits() []UnitResult {
	var out []UnitResult
	for _, u := range b.Units {
		if !u.OK() {
			out = append(out, u)
		}
	}
	return out
}

// RestoreResult reports the outcome of restore_from_backup.
type RestoreResult struct {
	BackupID          string           `json:"backupId"`
	Plan              restoreplan.Plan `json:"plan"`
	SafetyBackupID    string           `json:"safetyBackupId,omitempty"`
	Units             []UnitResult     `json:"units,omitempty"`
	RequiresMigration bool             `json:"requiresMigration"`
	ValidateOnly      bool             `json:"validateOnly"`
	Warnings          []string         `json:"warnings,omitempty"`
}

// ConflictError reports an unresolved restore conflict that requires
// --force. The reason always names the specific condition.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("restore conflict: %s (use --force to override)", e.Reason)
}

// IntegrityError reports that a backup failed verification.
type IntegrityError struct {
	Discrepancies []manifest.Discrepancy
}

func (e *IntegrityError) Error() string {
	names := make([]string, 0, len(e.Discrepancies))
	for _, d := range e.Discrepancies {
		names = append(names, fmt.Sprintf("%s (%s)", d.Name, d.Reason))
	}
	return fmt.Sprintf("backup failed verification: %s", strings.Join(names, ", "))
}

// labelMap turns the stack label (key or key=value) into volume labels for
// volumes created during restore.
func labelMap(label string) map[string]string {
	key, val := label, ""
	if i := strings.Index(label, "="); i >= 0 {
		key, val = label[:i], label[i+1:]
	}
	return map[string]string{key: val}
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.Out != nil {
		fmt.Fprintf(o.Out, format, args...)
	}
}
