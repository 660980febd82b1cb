package plugin

import (
	"context"

	"github.com/charmbracelet/log"
)

// Done signals that an initializer has finished. Calling it more than once
// is harmless; only the first call counts.
type Done func()

// Initializer is the single entry point a plugin exposes. It is invoked
// with the Ark as host, the shared imports registry, a completion signal,
// and any extra arguments given to LoadPlugin or RunPlugin.
//
// The initializer must call done exactly once for the load to complete.
// Returning a non-nil error (or panicking) counts as a failed invocation:
// the failure is logged, done is signalled on the plugin's behalf, and the
// plugin is marked degraded.
type Initializer func(ctx context.Context, host Host, imports *Imports, done Done, args ...any) error

// Host is the orchestrator surface visible to plugin initializers.
type Host interface {
	LoadPlugin(ctx context.Context, name string, args ...any) (string, error)
	RunPlugin(ctx context.Context, name string, args ...any) (string, error)
	ReloadPlugin(ctx context.Context, name string, args ...any) (string, error)

	// Emit publishes an event to every subscriber.
	Emit(event Event)

	// On registers a handler for one event type. Returns an unsubscribe func.
	On(eventType EventType, handler EventHandler) func()

	// Logger returns the orchestrator logger.
	Logger() *log.Logger
}

// Func is a callable capability that plugins can publish in the imports
// registry. Providers for other languages translate their own callables
// to and from this type.
type Func func(args ...any) ([]any, error)

// Metadata is the dependency declaration read from a plugin manifest.
type Metadata struct {
	// Requires lists plugin names that must load before this one,
	// in the order they are loaded.
	Requires []string

	// Source is the manifest file the metadata came from, empty when the
	// plugin has none.
	Source string
}

// HasRequires returns true if the plugin declares dependencies.
func (m Metadata) HasRequires() bool {
	return len(m.Requires) > 0
}

// Clone returns a deep copy of the metadata.
func (m Metadata) Clone() Metadata {
	clone := m
	if m.Requires != nil {
		clone.Requires = make([]string, len(m.Requires))
		copy(clone.Requires, m.Requires)
	}
	return clone
}
