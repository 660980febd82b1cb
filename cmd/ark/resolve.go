package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/dshills/ark/internal/app"
	"github.com/dshills/ark/internal/plugin"
)

func newResolveCmd(flags *globalFlags) *cobra.Command {
	var deep bool

	cmd := &cobra.Command{
		Use:   "resolve <plugin>...",
		Short: "Show where plugins resolve and what they require",
		Long: `Resolve plugin names the way run would, without loading anything,
and print the result as JSON. With --deep every requirement is resolved too,
each plugin listed once in load order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			cfg.Watch.Enabled = false

			application, err := app.New(cfg, app.WithOutput(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer application.Shutdown()

			out, err := resolveJSON(application.Ark(), args, deep)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(pretty.Pretty(out))
			return err
		},
	}
	cmd.Flags().BoolVarP(&deep, "deep", "d", false, "resolve requirements recursively")
	return cmd
}

// resolveJSON describes names as a JSON array. In deep mode requirements
// are listed before the plugins that need them and each path appears once.
func resolveJSON(ark *plugin.Ark, names []string, deep bool) ([]byte, error) {
	out := []byte(`[]`)
	seen := make(map[string]bool)

	var visit func(name string) error
	visit = func(name string) error {
		path, md, err := ark.Describe(name)
		if err != nil {
			return err
		}
		if seen[path] {
			return nil
		}
		seen[path] = true

		if deep {
			for _, req := range md.Requires {
				if err := visit(req); err != nil {
					return fmt.Errorf("%s requires %s: %w", name, req, err)
				}
			}
		}

		requires := md.Requires
		if requires == nil {
			requires = []string{}
		}
		out, err = sjson.SetBytes(out, "-1", map[string]any{
			"name":     name,
			"path":     path,
			"builtin":  strings.HasPrefix(path, plugin.BuiltinScheme),
			"requires": requires,
			"manifest": md.Source,
		})
		return err
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return out, nil
}
