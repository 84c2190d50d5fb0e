package dockerapi

import (
	"bytes"
	"context"
	"io"
	"sort"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
)

// composeServiceLabel is set by docker compose on every service container.
const composeServiceLabel = "com.docker.compose.service"

// RealClient wraps the official Docker Go SDK.
type RealClient struct {
	c client.APIClient
}

// ConnectLocal connects to the local Docker daemon using the standard
// environment (DOCKER_HOST etc.) with API version negotiation.
func ConnectLocal() (*RealClient, error) {
	c, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, &EnvironmentError{Op: "connect", Err: err}
	}
	return &RealClient{c: c}, nil
}

func (r *RealClient) RunHelper(ctx context.Context, spec HelperSpec) (HelperResult, error) {
	img := spec.Image
	if img == "" {
		img = DefaultHelperImage
	}
	mounts := []mount.Mount{
		{Type: mount.TypeVolume, Source: spec.Volume, Target: DataMount, ReadOnly: spec.VolumeReadOnly},
		{Type: mount.TypeBind, Source: spec.HostDir, Target: BackupMount, ReadOnly: spec.HostDirReadOnly},
	}
	cfg := &container.Config{Image: img, Cmd: spec.Command}
	host := &container.HostConfig{Mounts: mounts}

	created, err := r.c.ContainerCreate(ctx, cfg, host, nil, nil, "")
	if errdefs.IsNotFound(err) {
		// Helper image not present locally; pull and retry once.
		rc, perr := r.c.ImagePull(ctx, img, image.PullOptions{})
		if perr != nil {
			return HelperResult{}, &EnvironmentError{Op: "pull helper image", Err: perr}
		}
		_, _ = io.Copy(io.Discard, rc)
		rc.Close()
		created, err = r.c.ContainerCreate(ctx, cfg, host, nil, nil, "")
	}
	if err != nil {
		return HelperResult{}, &EnvironmentError{Op: "create helper container", Err: err}
	}
	id := created.ID
	defer func() {
		_ = r.c.ContainerRemove(context.Background(), id, container.RemoveOptions{Force: true})
	}()

	if err := r.c.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return HelperResult{}, &EnvironmentError{Op: "start helper container", Err: err}
	}

	waitCh, errCh := r.c.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	var exit int
	select {
	case err := <-errCh:
		return HelperResult{}, &EnvironmentError{Op: "wait for helper container", Err: err}
	case st := <-waitCh:
		exit = int(st.StatusCode)
	case <-ctx.Done():
		return HelperResult{}, ctx.Err()
	}

	var buf bytes.Buffer
	if logs, err := r.c.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true}); err == nil {
		_, _ = stdcopy.StdCopy(&buf, &buf, logs)
		logs.Close()
	}
	return HelperResult{ExitCode: exit, Output: buf.String()}, nil
}

func (r *RealClient) ListVolumes(ctx context.Context, label string) ([]Volume, error) {
	resp, err := r.c.VolumeList(ctx, volume.ListOptions{
		Filters: filters.NewArgs(filters.Arg("label", label)),
	})
	if err != nil {
		return nil, &EnvironmentError{Op: "list volumes", Err: err}
	}
	out := make([]Volume, 0, len(resp.Volumes))
	for _, v := range resp.Volumes {
		out = append(out, Volume{Name: v.Name, Labels: v.Labels})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *RealClient) VolumeExists(ctx context.Context, name string) (bool, error) {
	_, err := r.c.VolumeInspect(ctx, name)
	if err == nil {
		return true, nil
	}
	if errdefs.IsNotFound(err) {
		return false, nil
	}
	return false, &EnvironmentError{Op: "inspect volume", Err: err}
}

func (r *RealClient) CreateVolume(ctx context.Context, name string, labels map[string]string) error {
	_, err := r.c.VolumeCreate(ctx, volume.CreateOptions{Name: name, Labels: labels})
	if err != nil {
		return &EnvironmentError{Op: "create volume", Err: err}
	}
	return nil
}

func (r *RealClient) RunningServices(ctx context.Context, label string) ([]string, error) {
	containers, err := r.c.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(filters.Arg("label", label)),
	})
	if err != nil {
		return nil, &EnvironmentError{Op: "list containers", Err: err}
	}
	var names []string
	for _, c := range containers {
		if svc, ok := c.Labels[composeServiceLabel]; ok {
			names = append(names, svc)
		} else if len(c.Names) > 0 {
			names = append(names, c.Names[0])
		}
	}
	sort.Strings(names)
	return names, nil
}
