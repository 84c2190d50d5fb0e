package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"stack-backup/src/orchestrator"
	"stack-backup/src/safety"
)

func newRestoreCmd(stdout, stderr io.Writer) *cobra.Command {
	var output string
	var validateOnly bool
	cmd := &cobra.Command{
		Use:   "restore BACKUP",
		Short: "Restore volumes and config from a backup id or path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := getSafetyOptions(cmd)
			o, err := newOrchestrator(stderr)
			if err != nil {
				return err
			}
			// Dry-run behaves as a validate-only pre-flight.
			validate := validateOnly || opts.DryRun

			if !validate {
				ok, err := safety.Confirm(opts, cmd.InOrStdin(), stdout,
					fmt.Sprintf("Restore %s will overwrite the stack's volumes and config. Continue?", args[0]))
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}
			res, rerr := o.RestoreFromBackup(cmd.Context(), args[0], orchestrator.RestoreOptions{
				ValidateOnly: validate,
				Force:        opts.Force,
			})
			if res != nil {
				if err := renderRestore(stdout, output, res); err != nil {
					return err
				}
			}
			return rerr
		},
	}
	cmd.Flags().BoolVar(&validateOnly, "validate-only", false, "Verify the backup and detect conflicts without restoring")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

func renderRestore(w io.Writer, format string, res *orchestrator.RestoreResult) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(w, "backup %s: plan %s (status %s)\n", res.BackupID, res.Plan.Action, res.Plan.Status)
	if res.SafetyBackupID != "" {
		fmt.Fprintf(w, "safety backup: %s\n", res.SafetyBackupID)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	if len(res.Units) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "UNIT\tKIND\tSTATUS")
		for _, u := range res.Units {
			status := "restored"
			if !u.OK() {
				status = "failed: " + u.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", u.Name, u.Kind, status)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if res.RequiresMigration {
		fmt.Fprintln(w, "schema version differs: run 'stack-backup migrate' before starting the stack")
	}
	return nil
}
