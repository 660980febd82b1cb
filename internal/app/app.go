// Package app wires the plugin loader together from configuration and
// manages its lifecycle.
package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/dshills/ark/internal/builtin"
	"github.com/dshills/ark/internal/config"
	"github.com/dshills/ark/internal/plugin"
	"github.com/dshills/ark/internal/plugin/lua"
	"github.com/dshills/ark/internal/watcher"
)

// Application owns an Ark together with its providers, logger and, in
// watch mode, the file watcher that reloads changed plugins.
type Application struct {
	mu sync.Mutex

	// Core components
	config   *config.Config
	logger   *log.Logger
	registry *plugin.Registry
	lua      *lua.Provider
	ark      *plugin.Ark

	// Watch mode
	watcher     *watcher.Debounced
	unsubscribe func()

	// State
	running  atomic.Bool
	shutdown atomic.Bool
	done     chan struct{}
	wg       sync.WaitGroup
}

// Option configures an Application.
type Option func(*options)

type options struct {
	output  io.Writer
	modules []builtin.Module
	arkOpts []plugin.Option
}

// WithOutput sets where logs are written.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.output = w
	}
}

// WithModules replaces the default builtin modules.
func WithModules(modules ...builtin.Module) Option {
	return func(o *options) {
		o.modules = modules
	}
}

// WithArkOptions appends options passed to plugin.New.
func WithArkOptions(opts ...plugin.Option) Option {
	return func(o *options) {
		o.arkOpts = append(o.arkOpts, opts...)
	}
}

// New validates cfg and builds the Ark: builtin modules first in the
// provider chain, then Lua plugin directories.
func New(cfg *config.Config, opts ...Option) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, NewComponentError("config", "validate", err)
	}

	o := options{modules: builtin.All()}
	for _, opt := range opts {
		opt(&o)
	}

	logCfg := DefaultLoggerConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	if o.output != nil {
		logCfg.Output = o.output
	}
	logger := NewLogger(logCfg)

	registry := plugin.NewRegistry()
	for _, m := range o.modules {
		m.Register(registry)
	}
	luaProvider := lua.NewProvider(lua.WithGrants(cfg.Capabilities()...))

	arkOpts := []plugin.Option{
		plugin.WithBasePath(cfg.BasePath),
		plugin.WithPaths(cfg.Paths...),
		plugin.WithProvider(plugin.Chain{registry, luaProvider}),
		plugin.WithLogger(logger),
		plugin.WithIdleInterval(cfg.IdleInterval),
		plugin.WithReentry(cfg.ReentryPolicy()),
	}

	app := &Application{
		config:   cfg,
		logger:   logger,
		registry: registry,
		lua:      luaProvider,
		ark:      plugin.New(append(arkOpts, o.arkOpts...)...),
		done:     make(chan struct{}),
	}

	if cfg.Watch.Enabled {
		if err := app.startWatcher(); err != nil {
			luaProvider.Close()
			return nil, NewComponentError("watcher", "start", err)
		}
	}

	return app, nil
}

// Run loads the configured packages. Without watch mode it returns once
// setup finished; in watch mode it keeps reloading changed plugins until
// ctx is cancelled or Shutdown is called.
func (app *Application) Run(ctx context.Context) error {
	if app.shutdown.Load() {
		return ErrShutdown
	}
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	if _, err := app.ark.Setup(ctx, app.config.Packages, nil); err != nil {
		return err
	}
	if app.watcher == nil {
		return nil
	}

	app.logger.Info("Watching plugins for changes", "roots", len(app.watcher.Roots()))
	return app.watchLoop(ctx)
}

// Shutdown stops the watcher and closes every Lua state. Safe to call
// more than once.
func (app *Application) Shutdown() error {
	if !app.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	close(app.done)

	app.mu.Lock()
	w := app.watcher
	unsubscribe := app.unsubscribe
	app.mu.Unlock()

	var errs []error
	if unsubscribe != nil {
		unsubscribe()
	}
	if w != nil {
		app.logger.WithPrefix("watcher").Info("Watcher stopped",
			"roots", len(w.Roots()),
			"events", w.TotalEvents(),
			"errors", w.TotalErrors(),
			"pending", w.PendingCount(),
		)
		errs = append(errs, w.Close())
	}
	app.wg.Wait()
	errs = append(errs, app.lua.Close())
	return errors.Join(errs...)
}

// Ark returns the plugin loader.
func (app *Application) Ark() *plugin.Ark {
	return app.ark
}

// Config returns the configuration the application was built from.
func (app *Application) Config() *config.Config {
	return app.config
}

// Logger returns the application logger.
func (app *Application) Logger() *log.Logger {
	return app.logger
}

// Registry returns the builtin module registry.
func (app *Application) Registry() *plugin.Registry {
	return app.registry
}

// IsRunning returns true while Run is in progress.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// reloadOps are the changes that trigger a reload.
const reloadOps = watcher.OpCreate | watcher.OpWrite | watcher.OpRemove | watcher.OpRename

// startWatcher creates the watcher and subscribes to load events so every
// loaded plugin directory gets watched.
func (app *Application) startWatcher() error {
	inner, err := watcher.New(
		watcher.WithIgnoreHidden(!app.config.Watch.Hidden),
		watcher.WithOps(reloadOps),
	)
	if err != nil {
		return err
	}
	w := watcher.NewDebounced(inner, app.config.Watch.Debounce)
	logger := app.logger.WithPrefix("watcher")

	unsubscribe := app.ark.On(plugin.EventPluginLoaded, func(ev plugin.Event) {
		if strings.HasPrefix(ev.Path, plugin.BuiltinScheme) {
			return
		}
		if err := w.Watch(ev.Path); err != nil && !errors.Is(err, watcher.ErrAlreadyWatching) {
			logger.Warn("Cannot watch plugin", "plugin", ev.Name, "path", ev.Path, "err", err)
		}
	})

	app.mu.Lock()
	app.watcher = w
	app.unsubscribe = unsubscribe
	app.mu.Unlock()
	return nil
}

// watchLoop reloads the plugin owning each debounced change.
func (app *Application) watchLoop(ctx context.Context) error {
	app.wg.Add(1)
	defer app.wg.Done()

	logger := app.logger.WithPrefix("watcher")
	events := app.watcher.Events()
	errs := app.watcher.Errors()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-app.done:
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("Watch error", "err", err)
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			app.reload(ctx, ev)
		}
	}
}

// reload reloads the plugin at ev.Root. Failures are logged; the loop
// keeps watching so a later save can fix the plugin.
func (app *Application) reload(ctx context.Context, ev watcher.Event) {
	logger := app.logger.WithPrefix("watcher")
	logger.Debug("Plugin changed", "path", ev.Path, "op", ev.Op)

	if _, err := app.ark.ReloadPlugin(ctx, ev.Root); err != nil {
		logger.Error("Reload failed", "path", ev.Root, "err", err)
	}
}
