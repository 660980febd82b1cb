package builtin

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dshills/ark/internal/plugin"
)

// Import keys published by the env builtin.
const (
	EnvKey    = "env"
	GetenvKey = "getenv"
)

// Env publishes the process environment.
type Env struct{}

// Register registers the env builtin.
func (m *Env) Register(r *plugin.Registry) {
	r.Register("env", OnLoadEnv)
}

// OnLoadEnv stores the environment as a map under "env" and a lookup
// function under "getenv". An optional string argument restricts the map to
// variables with that prefix.
func OnLoadEnv(ctx context.Context, host plugin.Host, imports *plugin.Imports, done plugin.Done, args ...any) error {
	defer done()

	prefix := ""
	if len(args) > 0 {
		p, ok := args[0].(string)
		if !ok {
			return fmt.Errorf("env: prefix must be a string, got %T", args[0])
		}
		prefix = p
	}

	envMap := make(map[string]string)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 && strings.HasPrefix(pair[0], prefix) {
			envMap[pair[0]] = pair[1]
		}
	}

	imports.Set(EnvKey, envMap)
	imports.Set(GetenvKey, plugin.Func(getenv))
	return nil
}

// getenv returns the value of a variable, or the second argument as a
// default when it is unset.
func getenv(args ...any) ([]any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("getenv: name required")
	}
	name, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("getenv: name must be a string, got %T", args[0])
	}
	if value, ok := os.LookupEnv(name); ok {
		return []any{value}, nil
	}
	if len(args) > 1 {
		return []any{args[1]}, nil
	}
	return []any{nil}, nil
}
