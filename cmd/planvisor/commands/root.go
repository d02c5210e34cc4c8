package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	// buildVersion identifies this binary to the tracer.
	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "planvisor",
		Short: "Planvisor - capacity plan automation client",
		Long: `Planvisor drives what-if capacity plans on a remote analysis service.

A plan is described declaratively in a YAML document: the scope, the
projection horizon, workload changes, and automation settings. Planvisor
compiles the document for the server's protocol version, submits it, and
supervises the run through completion, with policy checks before
submission and a local history of past runs.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newRenderCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newStopCommand())
	rootCmd.AddCommand(newDestroyCommand())
	rootCmd.AddCommand(newBalanceCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
