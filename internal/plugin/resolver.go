package plugin

import (
	"os"
	"path/filepath"
)

// Lookup resolves a package-style plugin name that is not a directory
// under any base path.
type Lookup interface {
	Lookup(name string) (string, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(name string) (string, error)

// Lookup calls f(name).
func (f LookupFunc) Lookup(name string) (string, error) {
	return f(name)
}

// Resolver turns plugin names into canonical paths.
type Resolver struct {
	// Base paths searched in order
	paths []string

	// Fallback for names not found as directories
	fallback Lookup
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithSearchPaths sets the base paths.
func WithSearchPaths(paths ...string) ResolverOption {
	return func(r *Resolver) {
		r.paths = append([]string(nil), paths...)
	}
}

// WithLookup sets the fallback lookup.
func WithLookup(l Lookup) ResolverOption {
	return func(r *Resolver) {
		r.fallback = l
	}
}

// NewResolver creates a resolver. Without WithSearchPaths it searches
// DefaultBasePath only.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		paths: []string{DefaultBasePath()},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultBasePath returns the first directory plugins are searched in:
// ARK_BASE_PATH, then BASE_PATH, then the working directory.
func DefaultBasePath() string {
	for _, env := range []string{"ARK_BASE_PATH", "BASE_PATH"} {
		if p := os.Getenv(env); p != "" {
			return p
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// Paths returns the configured base paths.
func (r *Resolver) Paths() []string {
	paths := make([]string, len(r.paths))
	copy(paths, r.paths)
	return paths
}

// Resolve returns the canonical path for name. Base paths are checked in
// order and the first existing directory wins; otherwise the fallback
// lookup is consulted.
func (r *Resolver) Resolve(name string) (string, error) {
	if name == "" {
		return "", &NotFoundError{Name: name, Paths: r.Paths()}
	}

	if filepath.IsAbs(name) {
		if isDirectory(name) {
			return canonicalize(name), nil
		}
	} else {
		for _, base := range r.paths {
			candidate := filepath.Join(base, name)
			if isDirectory(candidate) {
				return canonicalize(candidate), nil
			}
		}
	}

	if r.fallback == nil {
		return "", &NotFoundError{Name: name, Paths: r.Paths()}
	}

	path, err := r.fallback.Lookup(name)
	if err != nil {
		return "", &NotFoundError{Name: name, Paths: r.Paths(), Err: err}
	}
	if path == "" {
		return "", &NotFoundError{Name: name, Paths: r.Paths()}
	}
	return path, nil
}

// isDirectory returns true if path exists and is a directory.
func isDirectory(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// canonicalize makes a directory path absolute and resolves symlinks so
// different spellings of one directory share a key.
func canonicalize(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	return abs
}
