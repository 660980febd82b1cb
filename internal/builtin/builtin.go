// Package builtin provides plugins that are linked into the ark binary.
// They are reachable by name from any plugin's requires list, the same as
// directory plugins, and resolve to builtin:<name> paths.
package builtin

import "github.com/dshills/ark/internal/plugin"

// Module is a statically linked plugin.
type Module interface {
	Register(r *plugin.Registry)
}

// All returns every builtin module.
func All() []Module {
	return []Module{
		&Env{},
		&Logger{},
	}
}

// RegisterAll registers every builtin with r.
func RegisterAll(r *plugin.Registry) {
	for _, m := range All() {
		m.Register(r)
	}
}
