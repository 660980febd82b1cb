// Package plugin loads plugins in dependency order.
//
// A plugin is a directory (or a statically linked builtin) exposing a
// single Initializer. The Ark resolves plugin names against its search
// paths, reads each plugin's manifest, loads the declared requirements
// first, and invokes every initializer exactly once per load. All
// initializers share one Imports registry: values a dependency publishes
// are visible to everything loaded after it.
//
// # Quick Start
//
//	reg := plugin.NewRegistry()
//	reg.Register("greeter", func(ctx context.Context, host plugin.Host, imports *plugin.Imports, done plugin.Done, args ...any) error {
//	    imports.Set("greet", plugin.Func(func(args ...any) ([]any, error) {
//	        return []any{fmt.Sprint("hello ", args[0])}, nil
//	    }))
//	    done()
//	    return nil
//	})
//
//	ark, err := plugin.Create(ctx, []string{"app"}, nil,
//	    plugin.WithBasePath("./plugins"),
//	    plugin.WithProvider(reg),
//	)
//
// # Resolution
//
// A name is joined with each search path in order (the base path first)
// and the first existing directory wins. Absolute names are used as-is.
// Names that match no directory go to the provider's Lookup, which is how
// builtins ("builtin:<name>") are found. Paths are canonicalized so a
// directory reached through different names or symlinks is one plugin.
//
// # Manifests
//
// Requirements are read from package.json:
//
//	{"plugin": {"requires": ["logger", "storage"]}}
//
// or, when there is no package.json, from plugin.hcl:
//
//	plugin {
//	  requires = ["logger", "storage"]
//	}
//
// A missing manifest means no requirements. A requires value that is not
// a list of strings is a ManifestShapeError.
//
// # Load states
//
// Every canonical path moves through StateUnseen, StatePending, and then
// StateLoaded or StateDegraded. Pending is set before anything can block,
// so a second request for the same path never starts a second load. What
// that second request does is set by ReentryPolicy.
//
// # Failures
//
// Resolution, manifest, and provider errors are returned to the caller.
// An initializer that returns an error or panics is logged, signalled as
// done on its behalf, and marked StateDegraded; its dependents still load.
// An initializer that never calls done keeps its path pending until the
// context ends, and the IdleMonitor reports it while Setup runs.
//
// # Events
//
// The Ark publishes EventPluginLoaded, EventPluginRun, EventPluginReloaded,
// and EventPluginFailed. Plugins may emit and subscribe to their own event
// types through the Host.
package plugin
