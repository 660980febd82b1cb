package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/ark/internal/app"
	"github.com/dshills/ark/internal/plugin"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [plugin...]",
		Short: "Load plugins in order",
		Long: `Load the given plugins, or the configured packages when none are
given. Each plugin's requirements load first. With --watch, ark keeps
running and reloads a plugin whenever files in its directory change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Packages = args
			}

			application, err := app.New(cfg, app.WithOutput(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer application.Shutdown()

			err = application.Run(cmd.Context())
			if cfg.Watch.Enabled && errors.Is(err, context.Canceled) {
				err = nil
			}
			if err != nil {
				return err
			}

			return printStatus(cmd.OutOrStdout(), application.Ark().Plugins())
		},
	}
	cmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "reload plugins when their files change")
	return cmd
}

// printStatus writes one line per plugin the run reached.
func printStatus(w io.Writer, status []plugin.Status) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLUGIN\tSTATE\tPATH")
	for _, s := range status {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.State, s.Path)
	}
	return tw.Flush()
}
