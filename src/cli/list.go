package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"stack-backup/src/stack"
	"stack-backup/src/store"
)

func newListCmd(stdout, stderr io.Writer) *cobra.Command {
	var output, dir string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backups in the backup directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := dir
			if root == "" {
				root = stack.LoadEnvironment().BackupDir
			}
			entries, err := store.List(root)
			if err != nil {
				return err
			}
			if output == "json" {
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tDESCRIPTION\tVOLUMES\tCONFIG\tCOMPRESSED\tNOTE")
			for _, e := range entries {
				created := ""
				if !e.CreatedAt.IsZero() {
					created = e.CreatedAt.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%t\t%s\n",
					e.ID, created, e.Description, e.Volumes, e.ConfigFiles, e.Compressed, e.Broken)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Backup directory to list (default: "+envHint+")")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}
