// Package cli implements the housecat command line.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the root command for the housecat CLI.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "housecat",
		Short:         "HouseCat - scheduled end-to-end website checks",
		Long:          "Plans, runs and evaluates browser checks against websites and keeps their history.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewTailCommand())

	return cmd
}
