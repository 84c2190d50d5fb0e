package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"stack-backup/src/orchestrator"
)

// newScheduleCmd runs unattended recurring backups. The process stays in
// the foreground until interrupted, the usual shape for a compose sidecar.
func newScheduleCmd(stdout, stderr io.Writer) *cobra.Command {
	var spec, description string
	var compress bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run recurring backups on a cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if spec == "" {
				return errors.New("--every is required (e.g., --every '0 3 * * *')")
			}
			o, err := newOrchestrator(stderr)
			if err != nil {
				return err
			}
			c := cron.New()
			_, err = c.AddFunc(spec, func() {
				b, err := o.CreateBackup(cmd.Context(), orchestrator.BackupOptions{
					Description: description,
					Compress:    compress,
				})
				if err != nil {
					fmt.Fprintf(stderr, "scheduled backup failed: %v\n", err)
					return
				}
				if failed := b.FailedUnits(); len(failed) > 0 {
					fmt.Fprintf(stderr, "scheduled backup %s: %d failed unit(s)\n", b.ID, len(failed))
				} else {
					fmt.Fprintf(stdout, "scheduled backup %s complete\n", b.ID)
				}
			})
			if err != nil {
				return fmt.Errorf("invalid cron spec %q: %w", spec, err)
			}
			c.Start()
			defer c.Stop()
			fmt.Fprintf(stdout, "scheduling backups at %q; waiting for signal\n", spec)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			select {
			case <-sig:
			case <-cmd.Context().Done():
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&spec, "every", "", "Cron schedule (5-field) for recurring backups")
	cmd.Flags().StringVar(&description, "description", "scheduled backup", "Description stored in each manifest")
	cmd.Flags().BoolVar(&compress, "compress", false, "Compress each scheduled backup")
	return cmd
}
