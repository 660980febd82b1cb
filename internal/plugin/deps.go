package plugin

import (
	"context"
	"fmt"
)

// LoadFunc loads one plugin by name.
type LoadFunc func(ctx context.Context, name string, args ...any) (string, error)

// DependencyResolver loads a plugin's declared requirements.
type DependencyResolver struct {
	load LoadFunc
}

// NewDependencyResolver creates a resolver that loads through load.
func NewDependencyResolver(load LoadFunc) *DependencyResolver {
	return &DependencyResolver{load: load}
}

// EnsureAll loads every requirement in declared order, one at a time,
// waiting for each before starting the next. Later entries may rely on
// earlier ones having populated the imports.
//
// There is no cycle detection: a requirement that is already pending
// returns immediately under the default reentry policy, so a plugin in a
// cycle may observe its dependency half-loaded.
func (d *DependencyResolver) EnsureAll(ctx context.Context, md Metadata, requester string) error {
	if !md.HasRequires() {
		return nil
	}

	for _, dep := range md.Requires {
		if _, err := d.load(ctx, dep); err != nil {
			return fmt.Errorf("%s requires %s: %w", requester, dep, err)
		}
	}
	return nil
}
