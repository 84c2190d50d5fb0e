package dockerapi

import (
	"context"
	"fmt"
)

// Mount points used by every helper container. The archiver addresses
// files through these fixed paths, so fakes and the real client agree.
const (
	DataMount   = "/data"   // target named volume
	BackupMount = "/backup" // host backup directory
)

// DefaultHelperImage is the image used for ephemeral archive helpers.
// Anything with tar and a POSIX shell works.
const DefaultHelperImage = "alpine:3.20"

// Volume models a named Docker volume as far as this tool cares.
type Volume struct {
	Name   string
	Labels map[string]string
}

// HelperSpec describes one ephemeral helper container run: a single command
// against a named volume mounted at DataMount and a host directory bound at
// BackupMount.
type HelperSpec struct {
	Image           string
	Command         []string
	Volume          string // named volume mounted at DataMount
	VolumeReadOnly  bool
	HostDir         string // host directory bound at BackupMount
	HostDirReadOnly bool
}

// HelperResult is the outcome of a helper container run.
type HelperResult struct {
	ExitCode int
	Output   string // combined stdout+stderr
}

// Client is the narrow contract this tool needs from the container runtime.
// Keep it small so it stays mockable; the core logic never talks to Docker
// beyond these five calls.
type Client interface {
	// RunHelper creates, runs to completion, and removes an ephemeral
	// helper container. A non-zero exit code is returned in the result,
	// not as an error; errors mean the helper could not be run at all.
	RunHelper(ctx context.Context, spec HelperSpec) (HelperResult, error)

	// ListVolumes returns the volumes carrying the given label
	// (key or key=value form).
	ListVolumes(ctx context.Context, label string) ([]Volume, error)

	// VolumeExists reports whether a named volume exists.
	VolumeExists(ctx context.Context, name string) (bool, error)

	// CreateVolume creates a named volume with the given labels.
	CreateVolume(ctx context.Context, name string, labels map[string]string) error

	// RunningServices returns the compose service names of running
	// containers carrying the given label.
	RunningServices(ctx context.Context, label string) ([]string, error)
}

// NotFoundError reports a missing runtime resource (volume, container).
type NotFoundError struct {
	Resource string
	Name     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Name)
}

// EnvironmentError reports that the runtime itself failed: daemon
// unreachable, helper image unavailable, container could not start.
type EnvironmentError struct {
	Op  string
	Err error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("runtime environment error during %s: %v", e.Op, e.Err)
}

func (e *EnvironmentError) Unwrap() error { return e.Err }
