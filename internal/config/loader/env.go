package loader

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvLoader loads configuration from environment variables.
type EnvLoader struct {
	prefix string // Environment variable prefix (e.g., "ARK_")

	// Env var -> config path, applied in order so later entries win
	mapping []EnvMapping
}

// EnvMapping binds one environment variable to a config path.
type EnvMapping struct {
	Env  string
	Path string
}

// NewEnvLoader creates a new environment variable loader.
// The prefix should include the trailing underscore (e.g., "ARK_").
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: DefaultEnvMapping(),
	}
}

// NewEnvLoaderWithMapping creates a loader with custom environment variable mappings.
func NewEnvLoaderWithMapping(prefix string, mapping []EnvMapping) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: mapping,
	}
}

// DefaultEnvMapping returns the default environment variable mappings.
// BASE_PATH is honored for compatibility and loses to ARK_BASE_PATH.
func DefaultEnvMapping() []EnvMapping {
	return []EnvMapping{
		{"BASE_PATH", "base_path"},
		{"ARK_BASE_PATH", "base_path"},
		{"ARK_PATHS", "paths"},
		{"ARK_PACKAGES", "packages"},
		{"ARK_REENTRY", "reentry"},
		{"ARK_IDLE_INTERVAL", "idle_interval"},
		{"ARK_LOG_LEVEL", "log.level"},
		{"ARK_LOG_FORMAT", "log.format"},
		{"ARK_WATCH", "watch.enabled"},
		{"ARK_WATCH_DEBOUNCE", "watch.debounce"},
		{"ARK_WATCH_HIDDEN", "watch.hidden"},
		{"ARK_LUA_CAPABILITIES", "lua.capabilities"},
	}
}

// Load reads environment variables and returns a configuration map.
// Note: Empty string values are treated as unset.
func (l *EnvLoader) Load() (map[string]any, error) {
	config := make(map[string]any)
	mapped := make(map[string]bool, len(l.mapping))

	// First, load explicitly mapped variables
	for _, m := range l.mapping {
		mapped[m.Env] = true
		if val := os.Getenv(m.Env); val != "" {
			setByPath(config, m.Path, l.parseValue(val))
		}
	}

	// Then, scan for additional prefixed variables not in mapping
	if l.prefix != "" {
		for _, env := range os.Environ() {
			if !strings.HasPrefix(env, l.prefix) {
				continue
			}

			parts := strings.SplitN(env, "=", 2)
			if len(parts) != 2 || parts[1] == "" || mapped[parts[0]] {
				continue
			}

			setByPath(config, l.envToPath(parts[0]), l.parseValue(parts[1]))
		}
	}

	return config, nil
}

// envToPath converts ARK_WATCH_DEBOUNCE to watch.debounce.
func (l *EnvLoader) envToPath(env string) string {
	name := strings.ToLower(strings.TrimPrefix(env, l.prefix))
	section, key, found := strings.Cut(name, "_")
	if !found {
		return section
	}
	return section + "." + key
}

// parseValue attempts to parse the string value into an appropriate type.
func (l *EnvLoader) parseValue(s string) any {
	// Try bool
	lower := strings.ToLower(s)
	if lower == "true" || lower == "yes" || lower == "on" {
		return true
	}
	if lower == "false" || lower == "no" || lower == "off" {
		return false
	}

	// Try int
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}

	// Try duration
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}

	// Try JSON array/object
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}

	// Default to string
	return s
}
