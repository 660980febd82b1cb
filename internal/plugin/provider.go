package plugin

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Provider turns canonical paths into initializers. It stands in for
// dynamic module loading: implementations may compile scripts, look up
// statically linked Go handlers, or anything else.
type Provider interface {
	// Lookup resolves a package-style name that is not a directory under
	// any base path. Returns ErrPluginNotFound when the provider does not
	// know the name.
	Lookup(name string) (string, error)

	// Initializer returns the initializer for a canonical path.
	// Returns ErrNoInitializer when the provider cannot serve the path.
	Initializer(path string) (Initializer, error)

	// Forget drops anything cached for path so the next Initializer call
	// starts fresh.
	Forget(path string)
}

// MetadataProvider is implemented by providers that know a plugin's
// dependencies without a manifest file.
type MetadataProvider interface {
	Metadata(path string) (Metadata, bool)
}

// BuiltinScheme prefixes the canonical path of statically linked plugins.
const BuiltinScheme = "builtin:"

// Registry is a Provider backed by statically linked Go initializers.
type Registry struct {
	mu sync.RWMutex

	// Initializers keyed by canonical path
	inits map[string]Initializer

	// Declared dependencies keyed by canonical path
	requires map[string][]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		inits:    make(map[string]Initializer),
		requires: make(map[string][]string),
	}
}

// BuiltinPath returns the canonical path for a builtin name.
func BuiltinPath(name string) string {
	return BuiltinScheme + name
}

// Register adds a builtin plugin reachable by name through Lookup.
func (r *Registry) Register(name string, init Initializer, requires ...string) {
	r.set(BuiltinPath(name), init, requires)
}

// RegisterDir binds an initializer to a plugin directory found under a
// base path. The directory's manifest still supplies its dependencies.
func (r *Registry) RegisterDir(dir string, init Initializer) {
	r.set(canonicalize(dir), init, nil)
}

func (r *Registry) set(path string, init Initializer, requires []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inits[path] = init
	if len(requires) > 0 {
		r.requires[path] = append([]string(nil), requires...)
	} else {
		delete(r.requires, path)
	}
}

// Lookup returns the builtin path of a registered name.
func (r *Registry) Lookup(name string) (string, error) {
	path := BuiltinPath(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.inits[path]; ok {
		return path, nil
	}
	return "", fmt.Errorf("%w: no builtin %q", ErrPluginNotFound, name)
}

// Initializer returns the registered initializer for path.
func (r *Registry) Initializer(path string) (Initializer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if init, ok := r.inits[path]; ok {
		return init, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoInitializer, path)
}

// Forget is a no-op: statically linked code has nothing to recompile.
func (r *Registry) Forget(string) {}

// Metadata returns the dependencies declared at registration.
func (r *Registry) Metadata(path string) (Metadata, bool) {
	if !strings.HasPrefix(path, BuiltinScheme) {
		return Metadata{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.inits[path]; !ok {
		return Metadata{}, false
	}
	return Metadata{Requires: append([]string(nil), r.requires[path]...)}, true
}

// Names returns the registered builtin names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for path := range r.inits {
		if strings.HasPrefix(path, BuiltinScheme) {
			names = append(names, strings.TrimPrefix(path, BuiltinScheme))
		}
	}
	sort.Strings(names)
	return names
}

// Chain tries several providers in order.
type Chain []Provider

// Lookup returns the first successful lookup.
func (c Chain) Lookup(name string) (string, error) {
	var errs []error
	for _, p := range c {
		path, err := p.Lookup(name)
		if err == nil {
			return path, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	return "", errors.Join(errs...)
}

// Initializer returns the first provider's initializer for path. Providers
// answering ErrNoInitializer are skipped; any other error stops the search.
func (c Chain) Initializer(path string) (Initializer, error) {
	for _, p := range c {
		init, err := p.Initializer(path)
		if err == nil {
			return init, nil
		}
		if !errors.Is(err, ErrNoInitializer) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s (no provider matched %s)", ErrNoInitializer, path, filepath.Base(path))
}

// Forget forwards to every provider.
func (c Chain) Forget(path string) {
	for _, p := range c {
		p.Forget(path)
	}
}

// Metadata returns the first metadata any provider knows.
func (c Chain) Metadata(path string) (Metadata, bool) {
	for _, p := range c {
		if mp, ok := p.(MetadataProvider); ok {
			if md, ok := mp.Metadata(path); ok {
				return md, true
			}
		}
	}
	return Metadata{}, false
}
