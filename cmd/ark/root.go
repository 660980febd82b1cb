package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/ark/internal/config"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	basePath   string
	paths      []string
	logLevel   string
	logFormat  string
	reentry    string
	watch      bool
}

// newRootCmd builds the command tree.
func newRootCmd(out, errOut io.Writer) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "ark",
		Short: "Load plugins and their dependencies in order",
		Long: `ark resolves plugin names to directories, loads every plugin a
package declares in its manifest before the package itself, and runs each
plugin's initializer exactly once.

Plugins are directories holding an init.lua entry script and an optional
package.json ({"plugin": {"requires": [...]}}) or plugin.hcl manifest.
Builtin plugins (env, log) are linked into the binary.

Examples:
  ark run app                 Load app and everything it requires
  ark run --watch app         Reload plugins when their files change
  ark resolve app             Show where app resolves and what it requires
  ark require ./app env       Add env to app's package.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file (default ark.toml, ark.yaml or ark.yml in the working directory)")
	pf.StringVarP(&flags.basePath, "base", "b", "", "first directory searched for plugins")
	pf.StringSliceVarP(&flags.paths, "path", "p", nil, "additional plugin search path (repeatable)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format (auto, text, json, logfmt)")
	pf.StringVar(&flags.reentry, "reentry", "", "reentry policy for pending plugins (return, await)")

	root.AddCommand(
		newRunCmd(flags),
		newResolveCmd(flags),
		newRequireCmd(),
		newVersionCmd(),
	)
	return root
}

// execute runs the CLI and returns the exit code.
func execute(ctx context.Context, args []string, out, errOut io.Writer) int {
	root := newRootCmd(out, errOut)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(errOut, "Error: %v\n", err)
	}
	if errors.Is(err, context.Canceled) {
		return exitOK
	}
	return exitCode(err)
}

// loadConfig loads the config file and environment, then applies flags
// that were set explicitly.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("base") {
		cfg.BasePath = flags.basePath
	}
	if changed("path") {
		for _, p := range flags.paths {
			cfg.Paths = append(cfg.Paths, filepath.SplitList(p)...)
		}
	}
	if changed("log-level") {
		cfg.Log.Level = strings.ToLower(flags.logLevel)
	}
	if changed("log-format") {
		cfg.Log.Format = flags.logFormat
	}
	if changed("reentry") {
		cfg.Reentry = flags.reentry
	}
	if changed("watch") {
		cfg.Watch.Enabled = flags.watch
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
