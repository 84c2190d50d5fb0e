package volumes

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"stack-backup/src/checksum"
	"stack-backup/src/dockerapi"
	"stack-backup/src/manifest"
)

// ArchiveName returns the archive file name used for a volume.
func ArchiveName(volume string) string {
	return volume + ".tar.gz"
}

// DiskFullError reports that a helper ran out of space writing an archive.
// Unlike other per-volume failures it poisons the whole backup: the
// remaining volumes would hit the same full disk.
type DiskFullError struct {
	Volume string
	Output string
}

func (e *DiskFullError) Error() string {
	return fmt.Sprintf("archive volume %s: no space left on device: %s", e.Volume, e.Output)
}

// diskFullMarker is what tar/sh report when the destination fills up.
const diskFullMarker = "no space left"

func isDiskFull(msg string) bool {
	return strings.Contains(strings.ToLower(msg), diskFullMarker)
}

// Archive streams a named volume's contents into destDir/<volume>.tar.gz
// via an ephemeral helper container and returns the manifest entry for the
// archive. The volume is mounted read-only; volume bytes are never read by
// the host process directly.
//
// A partially written archive is removed on any failure so it can never be
// mistaken for a complete one.
func Archive(ctx context.Context, client dockerapi.Client, volume, destDir string, out io.Writer) (manifest.Entry, error) {
	exists, err := client.VolumeExists(ctx, volume)
	if err != nil {
		return manifest.Entry{}, err
	}
	if !exists {
		return manifest.Entry{}, &dockerapi.NotFoundError{Resource: "volume", Name: volume}
	}

	name := ArchiveName(volume)
	if out != nil {
		fmt.Fprintf(out, "[archive] volume %s -> %s\n", volume, name)
	}
	res, err := client.RunHelper(ctx, dockerapi.HelperSpec{
		Command:        []string{"tar", "-czf", dockerapi.BackupMount + "/" + name, "-C", dockerapi.DataMount, "."},
		Volume:         volume,
		VolumeReadOnly: true,
		HostDir:        destDir,
	})
	if err != nil {
		removePartial(destDir, name)
		if isDiskFull(err.Error()) {
			return manifest.Entry{}, &DiskFullError{Volume: volume, Output: err.Error()}
		}
		return manifest.Entry{}, err
	}
	if res.ExitCode != 0 {
		removePartial(destDir, name)
		if isDiskFull(res.Output) {
			return manifest.Entry{}, &DiskFullError{Volume: volume, Output: res.Output}
		}
		return manifest.Entry{}, fmt.Errorf("archive volume %s: helper exited %d: %s", volume, res.ExitCode, res.Output)
	}

	full := filepath.Join(destDir, name)
	info, err := os.Stat(full)
	if err != nil {
		return manifest.Entry{}, fmt.Errorf("archive volume %s: %w", volume, err)
	}
	sum, err := checksum.File(full)
	if err != nil {
		return manifest.Entry{}, fmt.Errorf("archive volume %s: %w", volume, err)
	}
	return manifest.Entry{
		Name:     volume,
		Path:     name,
		Size:     info.Size(),
		Checksum: sum,
		Kind:     manifest.KindVolume,
	}, nil
}

func removePartial(dir, name string) {
	_ = os.Remove(filepath.Join(dir, name))
}
