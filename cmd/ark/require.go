package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/ark/internal/plugin"
)

func newRequireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "require <plugin-dir> <dependency>...",
		Short: "Add dependencies to a plugin's package.json",
		Long: `Append dependency names to plugin.requires in the package.json of a
plugin directory, creating the file if needed. Names already listed are
left alone.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			info, err := os.Stat(dir)
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a plugin directory", dir)
			}

			added, err := plugin.AddRequires(dir, args[1:]...)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(added) == 0 {
				fmt.Fprintln(w, "No changes")
				return nil
			}
			for _, name := range added {
				fmt.Fprintf(w, "Added %s\n", name)
			}
			return nil
		},
	}
}
