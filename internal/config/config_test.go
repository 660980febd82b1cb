package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/ark/internal/config/loader"
	"github.com/dshills/ark/internal/plugin"
	"github.com/dshills/ark/internal/plugin/lua"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, m := range loader.DefaultEnvMapping() {
		t.Setenv(m.Env, "")
	}
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
	if cfg.IdleInterval != plugin.DefaultIdleInterval {
		t.Errorf("IdleInterval = %v, want %v", cfg.IdleInterval, plugin.DefaultIdleInterval)
	}
	if cfg.ReentryPolicy() != plugin.ReentryReturn {
		t.Errorf("ReentryPolicy() = %v, want return", cfg.ReentryPolicy())
	}
}

func TestLoadTOML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, "ark.toml", `
base_path = "plugins"
paths = ["/abs/vendor", "more"]
packages = ["app"]
reentry = "await"
idle_interval = 1500

[log]
level = "debug"
format = "json"

[watch]
enabled = true
debounce = "50ms"
hidden = true

[lua]
capabilities = ["env", "filesystem.read"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Source != path {
		t.Errorf("Source = %s, want %s", cfg.Source, path)
	}
	if want := filepath.Join(dir, "plugins"); cfg.BasePath != want {
		t.Errorf("BasePath = %s, want %s", cfg.BasePath, want)
	}
	if len(cfg.Paths) != 2 || cfg.Paths[0] != "/abs/vendor" || cfg.Paths[1] != filepath.Join(dir, "more") {
		t.Errorf("Paths = %v", cfg.Paths)
	}
	if len(cfg.Packages) != 1 || cfg.Packages[0] != "app" {
		t.Errorf("Packages = %v, want [app]", cfg.Packages)
	}
	if cfg.ReentryPolicy() != plugin.ReentryAwait {
		t.Errorf("ReentryPolicy() = %v, want await", cfg.ReentryPolicy())
	}
	if cfg.IdleInterval != 1500*time.Millisecond {
		t.Errorf("IdleInterval = %v, want 1.5s", cfg.IdleInterval)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != FormatJSON {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if !cfg.Watch.Enabled || cfg.Watch.Debounce != 50*time.Millisecond || !cfg.Watch.Hidden {
		t.Errorf("Watch = %+v", cfg.Watch)
	}
	caps := cfg.Capabilities()
	if len(caps) != 2 || caps[0] != lua.CapabilityEnv || caps[1] != lua.CapabilityFileRead {
		t.Errorf("Capabilities() = %v", caps)
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, "ark.yml", `
base_path: /srv/plugins
packages: [one, two]
log:
  level: warn
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BasePath != "/srv/plugins" {
		t.Errorf("BasePath = %s, want /srv/plugins", cfg.BasePath)
	}
	if len(cfg.Packages) != 2 || cfg.Packages[1] != "two" {
		t.Errorf("Packages = %v, want [one two]", cfg.Packages)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %s, want warn", cfg.Log.Level)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, "ark.toml", `
base_path = "from-file"
packages = ["file"]

[log]
level = "info"
`)
	t.Setenv("ARK_BASE_PATH", "from-env")
	t.Setenv("ARK_PACKAGES", "a, b")
	t.Setenv("ARK_LOG_LEVEL", "error")
	t.Setenv("ARK_IDLE_INTERVAL", "3s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BasePath != "from-env" {
		t.Errorf("BasePath = %s, want from-env (env values are not anchored)", cfg.BasePath)
	}
	if len(cfg.Packages) != 2 || cfg.Packages[0] != "a" || cfg.Packages[1] != "b" {
		t.Errorf("Packages = %v, want [a b]", cfg.Packages)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %s, want error", cfg.Log.Level)
	}
	if cfg.IdleInterval != 3*time.Second {
		t.Errorf("IdleInterval = %v, want 3s", cfg.IdleInterval)
	}
}

func TestLoadDefaultFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() without a file error = %v", err)
	}
	if cfg.Source != "" {
		t.Errorf("Source = %s, want none", cfg.Source)
	}

	writeConfig(t, dir, "ark.yaml", "packages: [found]\n")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Source != "ark.yaml" || len(cfg.Packages) != 1 || cfg.Packages[0] != "found" {
		t.Errorf("Load() = %+v, want ark.yaml with [found]", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.toml")); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrFileNotFound", err)
	}

	ini := writeConfig(t, dir, "ark.ini", "x=1")
	if _, err := Load(ini); !errors.Is(err, loader.ErrUnsupportedFormat) {
		t.Errorf("Load(.ini) error = %v, want ErrUnsupportedFormat", err)
	}

	bad := writeConfig(t, dir, "bad.toml", "packages = [")
	var perr *loader.ParseError
	if _, err := Load(bad); !errors.As(err, &perr) {
		t.Errorf("Load(bad) error = %v, want *loader.ParseError", err)
	}

	wrongType := writeConfig(t, dir, "type.toml", "packages = [1, 2]")
	var terr *TypeError
	if _, err := Load(wrongType); !errors.As(err, &terr) {
		t.Errorf("Load(type) error = %v, want *TypeError", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		path   string
	}{
		{"reentry", func(c *Config) { c.Reentry = "block" }, "reentry"},
		{"idle interval", func(c *Config) { c.IdleInterval = 0 }, "idle_interval"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"debounce", func(c *Config) { c.Watch.Debounce = -time.Second }, "watch.debounce"},
		{"capability", func(c *Config) { c.Lua.Capabilities = []string{"network"} }, "lua.capabilities"},
		{"blank package", func(c *Config) { c.Packages = []string{"a", ""} }, "packages[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("Validate() error = %v, want ErrValidationFailed", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Path != tt.path {
				t.Errorf("Validate() error = %v, want path %s", err, tt.path)
			}
		})
	}
}

func TestPluginConfig(t *testing.T) {
	cfg := Default()
	cfg.BasePath = "/base"
	cfg.Paths = []string{"/extra"}
	cfg.Packages = []string{"app"}

	pc := cfg.PluginConfig()
	if pc.BasePath != "/base" || len(pc.Paths) != 1 || len(pc.Packages) != 1 {
		t.Errorf("PluginConfig() = %+v", pc)
	}

	pc.Packages[0] = "changed"
	if cfg.Packages[0] != "app" {
		t.Error("PluginConfig() shares the Packages slice")
	}
}
