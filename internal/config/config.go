package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dshills/ark/internal/config/loader"
	"github.com/dshills/ark/internal/plugin"
	"github.com/dshills/ark/internal/plugin/lua"
)

// DefaultFiles are looked up in the working directory when no config file
// is given, in order.
var DefaultFiles = []string{"ark.toml", "ark.yaml", "ark.yml"}

// Log formats.
const (
	FormatAuto   = "auto"
	FormatText   = "text"
	FormatJSON   = "json"
	FormatLogfmt = "logfmt"
)

// DefaultWatchDebounce is how long the watcher waits for a burst of file
// events to settle before reloading.
const DefaultWatchDebounce = 200 * time.Millisecond

// Config is the complete ark configuration.
type Config struct {
	// BasePath is searched first. Empty means plugin.DefaultBasePath.
	BasePath string

	// Paths are searched after BasePath, in order.
	Paths []string

	// Packages are the plugins loaded at startup.
	Packages []string

	// Reentry is "return" or "await".
	Reentry string

	// IdleInterval is how often stuck loads are reported.
	IdleInterval time.Duration

	Log   LogConfig
	Watch WatchConfig
	Lua   LuaConfig

	// Source is the config file that was loaded, if any.
	Source string
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string
	Format string
}

// WatchConfig configures reload on change.
type WatchConfig struct {
	Enabled  bool
	Debounce time.Duration
	// Hidden includes dot files and directories such as .git.
	Hidden bool
}

// LuaConfig configures the Lua provider.
type LuaConfig struct {
	Capabilities []string
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Reentry:      plugin.ReentryReturn.String(),
		IdleInterval: plugin.DefaultIdleInterval,
		Log: LogConfig{
			Level:  "info",
			Format: FormatAuto,
		},
		Watch: WatchConfig{
			Debounce: DefaultWatchDebounce,
		},
	}
}

// Load builds a Config from defaults, the config file, and the environment.
// An empty path searches DefaultFiles and tolerates none existing; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	return LoadWithFS(loader.DefaultFS(), path)
}

// LoadWithFS is Load with a custom file system.
func LoadWithFS(fsys loader.FileSystem, path string) (*Config, error) {
	cfg := Default()

	file, err := findFile(fsys, path)
	if err != nil {
		return nil, err
	}

	data := make(map[string]any)
	var fromFile map[string]any
	if file != "" {
		l, err := loader.ForFile(fsys, file)
		if err != nil {
			return nil, err
		}
		fromFile, err = l.Load()
		if err != nil {
			return nil, err
		}
		data = loader.DeepMerge(data, fromFile)
		cfg.Source = file
	}

	envData, err := loader.NewEnvLoader("ARK_").Load()
	if err != nil {
		return nil, err
	}
	data = loader.DeepMerge(data, envData)

	if err := cfg.Apply(data); err != nil {
		return nil, err
	}

	if file != "" {
		cfg.resolveRelative(filepath.Dir(file), fromFile, envData)
	}

	return cfg, nil
}

// findFile returns the config file to read, or "" if there is none.
func findFile(fsys loader.FileSystem, path string) (string, error) {
	if path != "" {
		if _, err := fsys.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
			}
			return "", err
		}
		return path, nil
	}
	for _, name := range DefaultFiles {
		if _, err := fsys.Stat(name); err == nil {
			return name, nil
		}
	}
	return "", nil
}

// resolveRelative anchors relative search paths taken from the file at the
// file's directory. Values from the environment are left as given.
func (c *Config) resolveRelative(dir string, fromFile, fromEnv map[string]any) {
	anchor := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	fileOnly := func(key string) bool {
		_, inFile := fromFile[key]
		_, inEnv := fromEnv[key]
		return inFile && !inEnv
	}
	if fileOnly("base_path") {
		c.BasePath = anchor(c.BasePath)
	}
	if fileOnly("paths") {
		for i, p := range c.Paths {
			c.Paths[i] = anchor(p)
		}
	}
}

// Apply overlays values from a merged config map.
func (c *Config) Apply(data map[string]any) error {
	var err error
	set := func(path string, fn func(v any) error) {
		if err != nil {
			return
		}
		if v, ok := loader.GetByPath(data, path); ok {
			err = fn(v)
		}
	}

	set("base_path", func(v any) error { return asString("base_path", v, &c.BasePath) })
	set("paths", func(v any) error { return asList("paths", v, filepath.SplitList, &c.Paths) })
	set("packages", func(v any) error { return asList("packages", v, splitComma, &c.Packages) })
	set("reentry", func(v any) error { return asString("reentry", v, &c.Reentry) })
	set("idle_interval", func(v any) error { return asDuration("idle_interval", v, &c.IdleInterval) })
	set("log.level", func(v any) error { return asString("log.level", v, &c.Log.Level) })
	set("log.format", func(v any) error { return asString("log.format", v, &c.Log.Format) })
	set("watch.enabled", func(v any) error { return asBool("watch.enabled", v, &c.Watch.Enabled) })
	set("watch.debounce", func(v any) error { return asDuration("watch.debounce", v, &c.Watch.Debounce) })
	set("watch.hidden", func(v any) error { return asBool("watch.hidden", v, &c.Watch.Hidden) })
	set("lua.capabilities", func(v any) error { return asList("lua.capabilities", v, splitComma, &c.Lua.Capabilities) })

	return err
}

// Validate checks every setting.
func (c *Config) Validate() error {
	var errs []error

	if _, err := plugin.ParseReentryPolicy(c.Reentry); err != nil {
		errs = append(errs, &ValidationError{Path: "reentry", Message: "must be return or await", Value: c.Reentry})
	}
	if c.IdleInterval <= 0 {
		errs = append(errs, &ValidationError{Path: "idle_interval", Message: "must be positive", Value: c.IdleInterval})
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, &ValidationError{Path: "log.level", Message: "must be debug, info, warn or error", Value: c.Log.Level})
	}
	switch c.Log.Format {
	case FormatAuto, FormatText, FormatJSON, FormatLogfmt:
	default:
		errs = append(errs, &ValidationError{Path: "log.format", Message: "must be auto, text, json or logfmt", Value: c.Log.Format})
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, &ValidationError{Path: "watch.debounce", Message: "must not be negative", Value: c.Watch.Debounce})
	}
	for _, name := range c.Lua.Capabilities {
		if _, ok := lua.ParseCapability(name); !ok {
			errs = append(errs, &ValidationError{Path: "lua.capabilities", Message: "unknown capability", Value: name})
		}
	}
	for i, name := range c.Packages {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, &ValidationError{Path: fmt.Sprintf("packages[%d]", i), Message: "must not be empty", Value: name})
		}
	}

	return errors.Join(errs...)
}

// Capabilities returns the parsed Lua capabilities. Unknown names are skipped.
func (c *Config) Capabilities() []lua.Capability {
	var caps []lua.Capability
	for _, name := range c.Lua.Capabilities {
		if cap, ok := lua.ParseCapability(name); ok {
			caps = append(caps, cap)
		}
	}
	return caps
}

// ReentryPolicy returns the parsed reentry policy.
func (c *Config) ReentryPolicy() plugin.ReentryPolicy {
	p, _ := plugin.ParseReentryPolicy(c.Reentry)
	return p
}

// PluginConfig returns the list-or-config form the plugin package accepts.
func (c *Config) PluginConfig() plugin.Config {
	return plugin.Config{
		Packages: append([]string(nil), c.Packages...),
		Paths:    append([]string(nil), c.Paths...),
		BasePath: c.BasePath,
	}
}

func asString(path string, v any, dst *string) error {
	s, ok := v.(string)
	if !ok {
		return &TypeError{Path: path, Expected: "string", Value: v}
	}
	*dst = s
	return nil
}

func asBool(path string, v any, dst *bool) error {
	b, ok := v.(bool)
	if !ok {
		return &TypeError{Path: path, Expected: "bool", Value: v}
	}
	*dst = b
	return nil
}

// asDuration accepts a duration string, a time.Duration, or an integer
// number of milliseconds.
func asDuration(path string, v any, dst *time.Duration) error {
	switch d := v.(type) {
	case time.Duration:
		*dst = d
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return &TypeError{Path: path, Expected: "duration", Value: v}
		}
		*dst = parsed
	case int64:
		*dst = time.Duration(d) * time.Millisecond
	case int:
		*dst = time.Duration(d) * time.Millisecond
	default:
		return &TypeError{Path: path, Expected: "duration", Value: v}
	}
	return nil
}

// asList accepts a list of strings or a single string split by split.
func asList(path string, v any, split func(string) []string, dst *[]string) error {
	switch l := v.(type) {
	case string:
		var out []string
		for _, s := range split(l) {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*dst = out
	case []string:
		*dst = append([]string(nil), l...)
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return &TypeError{Path: path, Expected: "list of strings", Value: v}
			}
			out = append(out, s)
		}
		*dst = out
	default:
		return &TypeError{Path: path, Expected: "list of strings", Value: v}
	}
	return nil
}

func splitComma(s string) []string {
	return strings.Split(s, ",")
}
