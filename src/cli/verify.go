package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newVerifyCmd(stdout, stderr io.Writer) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "verify BACKUP",
		Short: "Check a backup's files against its manifest checksums",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o := newOfflineOrchestrator(stderr)
			m, disc, err := o.Verify(args[0])
			if err != nil {
				return err
			}
			if output == "json" {
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(disc); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "UNIT\tPATH\tPROBLEM")
				for _, d := range disc {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, d.Path, d.Reason)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				if len(disc) == 0 {
					fmt.Fprintf(stdout, "backup %s: ok (%d entries)\n", m.BackupID, len(m.Entries))
				}
			}
			if len(disc) > 0 {
				return fmt.Errorf("backup %s: %d discrepancy(ies)", m.BackupID, len(disc))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}
