package cli

import (
	"io"

	"github.com/spf13/cobra"

	"stack-backup/src/dockerapi"
	"stack-backup/src/orchestrator"
	"stack-backup/src/safety"
	"stack-backup/src/stack"
)

// addGlobalFlags adds persistent safety flags to the root command.
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("dry-run", false, "Show planned actions without making changes")
	cmd.PersistentFlags().BoolP("yes", "y", false, "Assume 'yes' to prompts and run non-interactively")
	cmd.PersistentFlags().Bool("force", false, "Override conflict gates (running stack, failed verification)")
}

// getSafetyOptions reads the global flags into a safety.Options.
func getSafetyOptions(cmd *cobra.Command) safety.Options {
	dry, _ := cmd.Root().PersistentFlags().GetBool("dry-run")
	yes, _ := cmd.Root().PersistentFlags().GetBool("yes")
	force, _ := cmd.Root().PersistentFlags().GetBool("force")
	return safety.Options{DryRun: dry, Yes: yes, Force: force}
}

// connectRuntime is swapped out in tests that exercise commands without a
// Docker daemon.
var connectRuntime = func() (dockerapi.Client, error) {
	return dockerapi.ConnectLocal()
}

// newOrchestrator builds an orchestrator from the environment and a live
// runtime connection.
func newOrchestrator(out io.Writer) (*orchestrator.Orchestrator, error) {
	client, err := connectRuntime()
	if err != nil {
		return nil, err
	}
	return orchestrator.New(client, stack.LoadEnvironment(), out), nil
}

// newOfflineOrchestrator builds an orchestrator for commands that never
// talk to the runtime (list, verify).
func newOfflineOrchestrator(out io.Writer) *orchestrator.Orchestrator {
	return orchestrator.New(nil, stack.LoadEnvironment(), out)
}
