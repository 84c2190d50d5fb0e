package dockerapi

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FakeClient is an in-memory runtime for unit tests. Volumes are maps of
// relative file path to content. RunHelper recognizes the tar command
// shapes the archiver issues and performs real tar.gz encode/decode against
// the bound host directory, so archive/extract round-trips exercise real
// bytes without a daemon.
//
// The orchestrator drives the client from parallel workers, so every
// method takes the mutex. Tests may read the exported fields directly once
// the operation under test has returned.
type FakeClient struct {
	mu sync.Mutex

	Volumes      map[string]map[string][]byte
	VolumeLabels map[string]map[string]string
	Running      []string // running service names

	// FailHelper maps a volume name to an error message; RunHelper for
	// that volume fails as if the helper container could not start.
	FailHelper map[string]string

	// HelperRuns records every helper spec executed, in order.
	HelperRuns []HelperSpec
}

func NewFake() *FakeClient {
	return &FakeClient{
		Volumes:      map[string]map[string][]byte{},
		VolumeLabels: map[string]map[string]string{},
		FailHelper:   map[string]string{},
	}
}

// AddVolume registers a volume with the given files and labels.
func (f *FakeClient) AddVolume(name string, labels map[string]string, files map[string][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addVolumeLocked(name, labels, files)
}

func (f *FakeClient) addVolumeLocked(name string, labels map[string]string, files map[string][]byte) {
	if files == nil {
		files = map[string][]byte{}
	}
	if labels == nil {
		labels = map[string]string{}
	}
	f.Volumes[name] = files
	f.VolumeLabels[name] = labels
}

func (f *FakeClient) RunHelper(ctx context.Context, spec HelperSpec) (HelperResult, error) {
	if err := ctx.Err(); err != nil {
		return HelperResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.FailHelper[spec.Volume]; ok {
		return HelperResult{}, &EnvironmentError{Op: "start helper container", Err: fmt.Errorf("%s", msg)}
	}
	if _, ok := f.Volumes[spec.Volume]; !ok {
		return HelperResult{}, &NotFoundError{Resource: "volume", Name: spec.Volume}
	}
	f.HelperRuns = append(f.HelperRuns, spec)

	if path, ok := archiveTarget(spec.Command); ok {
		host := hostPath(spec.HostDir, path)
		if err := writeTarGz(host, f.Volumes[spec.Volume]); err != nil {
			return HelperResult{ExitCode: 1, Output: err.Error()}, nil
		}
		return HelperResult{ExitCode: 0}, nil
	}
	if path, ok := extractSource(spec.Command); ok {
		host := hostPath(spec.HostDir, path)
		files, err := readTarGz(host)
		if err != nil {
			return HelperResult{ExitCode: 1, Output: err.Error()}, nil
		}
		// The extract command empties /data first; mirror that.
		f.Volumes[spec.Volume] = files
		return HelperResult{ExitCode: 0}, nil
	}
	return HelperResult{ExitCode: 127, Output: fmt.Sprintf("fake runtime: unrecognized command %v", spec.Command)}, nil
}

func (f *FakeClient) ListVolumes(ctx context.Context, label string) ([]Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, val := label, ""
	if i := strings.Index(label, "="); i >= 0 {
		key, val = label[:i], label[i+1:]
	}
	var out []Volume
	for name, labels := range f.VolumeLabels {
		v, ok := labels[key]
		if !ok || (val != "" && v != val) {
			continue
		}
		out = append(out, Volume{Name: name, Labels: labels})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *FakeClient) VolumeExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Volumes[name]
	return ok, nil
}

func (f *FakeClient) CreateVolume(ctx context.Context, name string, labels map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Volumes[name]; !ok {
		f.addVolumeLocked(name, labels, nil)
	}
	return nil
}

func (f *FakeClient) RunningServices(ctx context.Context, label string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.Running...)
	sort.Strings(out)
	return out, nil
}

// archiveTarget extracts the archive path from a "tar -czf <path> ..." argv.
func archiveTarget(cmd []string) (string, bool) {
	for i, tok := range cmd {
		if tok == "-czf" && i+1 < len(cmd) {
			return cmd[i+1], true
		}
	}
	return "", false
}

// extractSource extracts the archive path from the "sh -c '... tar -xzf
// <path> ...'" restore command.
func extractSource(cmd []string) (string, bool) {
	if len(cmd) < 3 || cmd[0] != "sh" || cmd[1] != "-c" {
		return "", false
	}
	script := cmd[2]
	const marker = "tar -xzf "
	i := strings.Index(script, marker)
	if i < 0 {
		return "", false
	}
	rest := script[i+len(marker):]
	if j := strings.IndexByte(rest, ' '); j >= 0 {
		rest = rest[:j]
	}
	return rest, true
}

// hostPath maps a container path under BackupMount to the bound host dir.
func hostPath(hostDir, containerPath string) string {
	rel := strings.TrimPrefix(containerPath, BackupMount+"/")
	return filepath.Join(hostDir, rel)
}

func writeTarGz(dest string, files map[string][]byte) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, name := range names {
		hdr := &tar.Header{
			Name:    "./" + name,
			Mode:    0o644,
			Size:    int64(len(files[name])),
			ModTime: time.Unix(0, 0),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			f.Close()
			return err
		}
		if _, err := tw.Write(files[name]); err != nil {
			f.Close()
			return err
		}
	}
	if err := tw.Close(); err != nil {
		f.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readTarGz(src string) (map[string][]byte, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	files := map[string][]byte{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		b, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		name := strings.TrimPrefix(filepath.Clean(hdr.Name), "./")
		files[name] = b
	}
	return files, nil
}
