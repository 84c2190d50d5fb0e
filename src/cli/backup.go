package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"stack-backup/src/orchestrator"
	"stack-backup/src/stack"
)

func newBackupCmd(stdout, stderr io.Writer) *cobra.Command {
	var description, outputDir, output string
	var compress bool
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create a point-in-time backup of the stack's volumes and config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := getSafetyOptions(cmd)
			o, err := newOrchestrator(stderr)
			if err != nil {
				return err
			}
			if opts.DryRun {
				vols, err := o.Client.ListVolumes(cmd.Context(), o.Env.Label)
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "would back up config from %s and %d volume(s):\n", o.Env.ConfigDir, len(vols))
				for _, v := range vols {
					fmt.Fprintf(stdout, "  %s\n", v.Name)
				}
				if services, err := stack.ServiceNames(o.Env.ComposeFile); err == nil && len(services) > 0 {
					fmt.Fprintf(stdout, "stack services: %s\n", strings.Join(services, ", "))
				}
				return nil
			}
			b, err := o.CreateBackup(cmd.Context(), orchestrator.BackupOptions{
				Description: description,
				Compress:    compress,
				TargetDir:   outputDir,
			})
			if err != nil {
				return err
			}
			if err := renderBackup(stdout, output, b); err != nil {
				return err
			}
			if failed := b.FailedUnits(); len(failed) > 0 {
				return fmt.Errorf("backup %s completed with %d failed unit(s)", b.ID, len(failed))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Human description stored in the manifest")
	cmd.Flags().BoolVar(&compress, "compress", false, "Pack the backup into a single .tar.gz archive")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Backup destination (default: "+envHint+")")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

const envHint = "$STACKBAK_DIR or ~/.stack-backup"

func renderBackup(w io.Writer, format string, b *orchestrator.Backup) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	}
	fmt.Fprintf(w, "backup %s -> %s\n", b.ID, b.Path)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tKIND\tSTATUS")
	for _, u := range b.Units {
		status := "ok"
		if !u.OK() {
			status = "failed: " + u.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", u.Name, u.Kind, status)
	}
	return tw.Flush()
}
