package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// versionString returns a formatted version string for display.
func versionString() string {
	if version == "dev" {
		return "ark dev (built from source)"
	}
	return fmt.Sprintf("ark %s (commit: %s, built: %s)", version, commit, date)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versionString())
		},
	}
}
