package builtin

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/dshills/ark/internal/plugin"
)

// LogKey is the import key of the log function.
const LogKey = "log"

// Logger publishes a structured log function backed by the host logger.
type Logger struct{}

// Register registers the logger builtin.
func (m *Logger) Register(r *plugin.Registry) {
	r.Register("logger", OnLoadLogger)
}

// OnLoadLogger stores a function under "log" called as
// log(level, message, [fields]) where fields is a map of key/value pairs.
func OnLoadLogger(ctx context.Context, host plugin.Host, imports *plugin.Imports, done plugin.Done, args ...any) error {
	defer done()

	logger := host.Logger().WithPrefix("plugin")
	imports.Set(LogKey, plugin.Func(func(args ...any) ([]any, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("log: level and message required")
		}
		levelName, _ := args[0].(string)
		level, err := log.ParseLevel(levelName)
		if err != nil {
			return nil, fmt.Errorf("log: %w", err)
		}
		logger.Log(level, fmt.Sprint(args[1]), fields(args[2:])...)
		return nil, nil
	}))
	return nil
}

// fields flattens an optional map argument into sorted key/value pairs.
func fields(args []any) []any {
	if len(args) == 0 {
		return nil
	}
	m, ok := args[0].(map[string]any)
	if !ok {
		return args
	}

	// Sort keys for consistent output
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kv := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		kv = append(kv, k, m[k])
	}
	return kv
}
