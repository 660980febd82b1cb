package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/ark/internal/builtin"
	"github.com/dshills/ark/internal/config"
	"github.com/dshills/ark/internal/plugin"
)

// writePlugin creates a Lua plugin directory with an init.lua and an
// optional package.json.
func writePlugin(t *testing.T, base, name, script, manifest string) string {
	t.Helper()
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "init.lua"), []byte(script), 0644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}
	if manifest != "" {
		if err := os.WriteFile(filepath.Join(dir, plugin.ManifestJSON), []byte(manifest), 0644); err != nil {
			t.Fatalf("WriteFile error = %v", err)
		}
	}
	return dir
}

func testConfig(base string, packages ...string) *config.Config {
	cfg := config.Default()
	cfg.BasePath = base
	cfg.Packages = packages
	cfg.Log.Format = config.FormatText
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) (*Application, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	app, err := New(cfg, WithOutput(&buf))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	t.Cleanup(func() { app.Shutdown() })
	return app, &buf
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Reentry = "sometimes"

	_, err := New(cfg)
	if !errors.Is(err, config.ErrValidationFailed) {
		t.Fatalf("New error = %v, want ErrValidationFailed", err)
	}
	var cerr *ComponentError
	if !errors.As(err, &cerr) || cerr.Component != "config" {
		t.Errorf("New error = %v, want a config ComponentError", err)
	}
}

func TestNew_Builtins(t *testing.T) {
	app, _ := newTestApp(t, config.Default())

	names := app.Registry().Names()
	if len(names) != len(builtin.All()) {
		t.Errorf("Registry().Names() = %v, want %d builtins", names, len(builtin.All()))
	}

	custom, _ := New(config.Default(), WithModules(&builtin.Env{}), WithOutput(&bytes.Buffer{}))
	defer custom.Shutdown()
	if got := custom.Registry().Names(); len(got) != 1 || got[0] != "env" {
		t.Errorf("Registry().Names() with WithModules = %v, want [env]", got)
	}
}

func TestRun_LoadsPackages(t *testing.T) {
	base := t.TempDir()
	writePlugin(t, base, "greeter", `
return function(imports, done)
  imports.greeting = "hello " .. imports.getenv("ARK_TEST_USER", "nobody")
  done()
end
`, `{"name": "greeter", "plugin": {"requires": ["env"]}}`)
	t.Setenv("ARK_TEST_USER", "ada")

	app, _ := newTestApp(t, testConfig(base, "greeter"))
	if err := app.Run(context.Background()); err != nil {
		t.Fatalf("Run error = %v", err)
	}

	got, ok := app.Ark().Imports().Get("greeting")
	if !ok || got != "hello ada" {
		t.Errorf("greeting = %v, %v; want hello ada", got, ok)
	}

	state, err := app.Ark().State("env")
	if err != nil || state != plugin.StateLoaded {
		t.Errorf("State(env) = %v, %v; want loaded", state, err)
	}
	if app.IsRunning() {
		t.Error("IsRunning should be false after a one-shot run")
	}
}

func TestRun_NoPackages(t *testing.T) {
	app, _ := newTestApp(t, testConfig(t.TempDir()))

	err := app.Run(context.Background())
	if !errors.Is(err, plugin.ErrInvalidConfig) {
		t.Errorf("Run error = %v, want ErrInvalidConfig", err)
	}
}

func TestRun_NotFound(t *testing.T) {
	app, _ := newTestApp(t, testConfig(t.TempDir(), "missing"))

	err := app.Run(context.Background())
	if !errors.Is(err, plugin.ErrPluginNotFound) {
		t.Errorf("Run error = %v, want ErrPluginNotFound", err)
	}
}

func TestRun_AfterShutdown(t *testing.T) {
	app, _ := newTestApp(t, testConfig(t.TempDir(), "x"))

	if err := app.Shutdown(); err != nil {
		t.Fatalf("Shutdown error = %v", err)
	}
	if err := app.Run(context.Background()); !errors.Is(err, ErrShutdown) {
		t.Errorf("Run after Shutdown error = %v, want ErrShutdown", err)
	}
	if err := app.Shutdown(); err != nil {
		t.Errorf("Shutdown again error = %v", err)
	}
}

func TestRun_WatchReloads(t *testing.T) {
	base := t.TempDir()
	dir := writePlugin(t, base, "counter", `
return function(imports, done)
  imports.version = 1
  done()
end
`, "")

	cfg := testConfig(base, "counter")
	cfg.Watch.Enabled = true
	cfg.Watch.Debounce = 20 * time.Millisecond
	app, out := newTestApp(t, cfg)

	reloaded := make(chan plugin.Event, 4)
	app.Ark().On(plugin.EventPluginReloaded, func(ev plugin.Event) {
		reloaded <- ev
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- app.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if state, _ := app.Ark().State("counter"); state.IsLoaded() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for initial load")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !app.IsRunning() {
		t.Error("IsRunning should be true in watch mode")
	}

	script := "return function(imports, done)\n  imports.version = 2\n  done()\nend\n"
	if err := os.WriteFile(filepath.Join(dir, "init.lua"), []byte(script), 0644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}

	select {
	case <-reloaded:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	if got, _ := app.Ark().Imports().Get("version"); got != int64(2) {
		t.Errorf("version = %v (%T), want 2", got, got)
	}

	cancel()
	select {
	case err := <-runErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if err := app.Shutdown(); err != nil {
		t.Errorf("Shutdown error = %v", err)
	}
	if !strings.Contains(out.String(), "Watcher stopped") || !strings.Contains(out.String(), "roots=1") {
		t.Errorf("shutdown log missing watcher stats:\n%s", out.String())
	}
}
