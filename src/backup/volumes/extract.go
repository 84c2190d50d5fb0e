package volumes

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"stack-backup/src/dockerapi"
)

// Extract restores a volume archive into the named volume. The volume is
// created if absent; an existing volume is emptied inside the same helper
// run before the archive is unpacked, so restored content never mixes with
// old content. Callers must only invoke Extract after the restore plan has
// authorized overwrite.
func Extract(ctx context.Context, client dockerapi.Client, archivePath, volume string, labels map[string]string, out io.Writer) error {
	exists, err := client.VolumeExists(ctx, volume)
	if err != nil {
		return err
	}
	if !exists {
		if err := client.CreateVolume(ctx, volume, labels); err != nil {
			return err
		}
	}

	hostDir := filepath.Dir(archivePath)
	name := filepath.Base(archivePath)
	if out != nil {
		fmt.Fprintf(out, "[extract] %s -> volume %s\n", name, volume)
	}
	// Empty the volume first (including dotfiles), then unpack. One shell
	// invocation so there is no window with a wiped volume and no restore.
	script := fmt.Sprintf(
		"rm -rf %[1]s/* %[1]s/.[!.]* %[1]s/..?* ; tar -xzf %[2]s/%[3]s -C %[1]s",
		dockerapi.DataMount, dockerapi.BackupMount, name,
	)
	res, err := client.RunHelper(ctx, dockerapi.HelperSpec{
		Command:         []string{"sh", "-c", script},
		Volume:          volume,
		HostDir:         hostDir,
		HostDirReadOnly: true,
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("extract into volume %s: helper exited %d: %s", volume, res.ExitCode, res.Output)
	}
	return nil
}
