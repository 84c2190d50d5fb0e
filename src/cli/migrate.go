package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"stack-backup/src/migrate"
)

func newMigrateCmd(stdout, stderr io.Writer) *cobra.Command {
	var output string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring the structured state file up to the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := getSafetyOptions(cmd)
			o, err := newOrchestrator(stderr)
			if err != nil {
				return err
			}
			res, rerr := o.Migrate(cmd.Context(), dryRun || opts.DryRun)
			if output == "json" {
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
				return rerr
			}
			switch {
			case rerr != nil:
				// fallthrough to error return; phase context is in rerr
			case res.NoOp:
				fmt.Fprintf(stdout, "already at version %d\n", res.To)
			case res.Phase == migrate.PhasePlan:
				fmt.Fprintf(stdout, "would migrate v%d -> v%d:\n", res.From, res.To)
				for _, s := range res.Planned {
					fmt.Fprintf(stdout, "  %s\n", s)
				}
			default:
				fmt.Fprintf(stdout, "migrated v%d -> v%d (safety backup %s)\n", res.From, res.To, res.SafetyBackupID)
			}
			return rerr
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan the migration without applying it")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}
