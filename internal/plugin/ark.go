package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// ReentryPolicy decides what LoadPlugin does when the path is already
// pending.
type ReentryPolicy int

const (
	// ReentryReturn returns immediately without waiting. A plugin in a
	// dependency cycle may then see its dependency half-loaded.
	ReentryReturn ReentryPolicy = iota

	// ReentryAwait waits for the in-flight load to settle. A dependency
	// cycle then blocks until the context is cancelled.
	ReentryAwait
)

// String returns the policy name.
func (p ReentryPolicy) String() string {
	switch p {
	case ReentryReturn:
		return "return"
	case ReentryAwait:
		return "await"
	default:
		return "unknown"
	}
}

// ParseReentryPolicy parses "return" or "await". Empty means return.
func ParseReentryPolicy(s string) (ReentryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "return":
		return ReentryReturn, nil
	case "await":
		return ReentryAwait, nil
	default:
		return ReentryReturn, fmt.Errorf("unknown reentry policy %q (want return or await)", s)
	}
}

// SetupCallback receives the Ark and its imports once Setup has loaded
// every plugin.
type SetupCallback func(ark *Ark, imports *Imports)

// Config is the list-or-config form accepted by CreateFromConfig.
type Config struct {
	// Packages are the plugins to load, in order.
	Packages []string

	// Paths are searched after the base path.
	Paths []string

	// BasePath overrides DefaultBasePath when set.
	BasePath string
}

// Ark resolves plugins, loads their dependencies first, and invokes each
// initializer exactly once. All state lives on the instance, so several
// Arks can coexist in one process.
type Ark struct {
	resolver     *Resolver
	provider     Provider
	readManifest ManifestReader
	store        *Store
	imports      *Imports
	deps         *DependencyResolver
	events       eventStream
	idle         *IdleMonitor
	logger       *log.Logger

	// Configuration
	basePath     string
	paths        []string
	reentry      ReentryPolicy
	idleInterval time.Duration
	idleReporter IdleReporter
	preSetup     func(*Ark) error
}

var _ Host = (*Ark)(nil)

// Option configures an Ark.
type Option func(*Ark)

// WithBasePath sets the first search path instead of DefaultBasePath.
func WithBasePath(path string) Option {
	return func(a *Ark) {
		if path != "" {
			a.basePath = path
		}
	}
}

// WithPaths adds search paths after the base path.
func WithPaths(paths ...string) Option {
	return func(a *Ark) {
		a.paths = append(a.paths, paths...)
	}
}

// WithProvider sets the module provider.
func WithProvider(p Provider) Option {
	return func(a *Ark) {
		if p != nil {
			a.provider = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(a *Ark) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithIdleInterval sets the idle monitor period.
func WithIdleInterval(d time.Duration) Option {
	return func(a *Ark) {
		a.idleInterval = d
	}
}

// WithIdleReporter replaces the idle monitor's default log output.
func WithIdleReporter(r IdleReporter) Option {
	return func(a *Ark) {
		a.idleReporter = r
	}
}

// WithReentry sets the reentry policy.
func WithReentry(p ReentryPolicy) Option {
	return func(a *Ark) {
		a.reentry = p
	}
}

// WithImports shares an existing imports registry.
func WithImports(imports *Imports) Option {
	return func(a *Ark) {
		if imports != nil {
			a.imports = imports
		}
	}
}

// WithManifestReader replaces ReadManifest.
func WithManifestReader(r ManifestReader) Option {
	return func(a *Ark) {
		if r != nil {
			a.readManifest = r
		}
	}
}

// WithPreSetup runs hook after construction and before Setup in Create.
func WithPreSetup(hook func(*Ark) error) Option {
	return func(a *Ark) {
		a.preSetup = hook
	}
}

// New creates an Ark.
func New(opts ...Option) *Ark {
	a := &Ark{
		provider:     NewRegistry(),
		readManifest: ReadManifest,
		store:        NewStore(),
		imports:      NewImports(),
		logger:       log.NewWithOptions(os.Stderr, log.Options{Prefix: "ark"}),
		basePath:     DefaultBasePath(),
		reentry:      ReentryReturn,
		idleInterval: DefaultIdleInterval,
	}

	for _, opt := range opts {
		opt(a)
	}

	searchPaths := append([]string{a.basePath}, a.paths...)
	a.resolver = NewResolver(WithSearchPaths(searchPaths...), WithLookup(a.provider))
	a.deps = NewDependencyResolver(func(ctx context.Context, name string, _ ...any) (string, error) {
		return a.LoadPlugin(ctx, name)
	})
	if a.idleReporter == nil {
		a.idleReporter = a.logWaiting
	}
	a.idle = NewIdleMonitor(a.idleInterval, a.store.Waiting, a.idleReporter)

	return a
}

// Create builds an Ark, runs the pre-setup hook if one was given, and
// sets up packages. The Ark is returned even when setup fails.
func Create(ctx context.Context, packages []string, callback SetupCallback, opts ...Option) (*Ark, error) {
	a := New(opts...)
	if a.preSetup != nil {
		if err := a.preSetup(a); err != nil {
			return a, fmt.Errorf("pre-setup hook: %w", err)
		}
	}
	if _, err := a.Setup(ctx, packages, callback); err != nil {
		return a, err
	}
	return a, nil
}

// CreateFromConfig is Create with packages and paths taken from cfg.
func CreateFromConfig(ctx context.Context, cfg Config, callback SetupCallback, opts ...Option) (*Ark, error) {
	base := []Option{WithBasePath(cfg.BasePath), WithPaths(cfg.Paths...)}
	return Create(ctx, cfg.Packages, callback, append(base, opts...)...)
}

// Setup loads names in order, one at a time, then calls callback with the
// Ark and its imports. The idle monitor runs while setup is in flight and
// is stopped for good when it finishes.
func (a *Ark) Setup(ctx context.Context, names []string, callback SetupCallback) (*Imports, error) {
	if len(names) == 0 {
		return nil, &ConfigError{Reason: "at least one plugin is required to start"}
	}
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, &ConfigError{Reason: fmt.Sprintf("plugin entry %d is empty", i)}
		}
	}

	a.idle.Start(ctx)
	for _, name := range names {
		if _, err := a.LoadPlugin(ctx, name); err != nil {
			a.idle.Stop()
			return nil, err
		}
	}
	a.idle.Stop()

	a.logger.Info("Setup complete", "plugins", len(names), "imports", a.imports.Len())
	if callback != nil {
		callback(a, a.imports)
	}
	return a.imports, nil
}

// LoadPlugin loads a plugin and its requirements. If the resolved path is
// already pending or loaded it returns at once (or, under ReentryAwait,
// once the pending load settles). Extra args are passed to the initializer.
//
// Resolution, manifest, and provider errors are fatal and returned. An
// initializer failure is not: it is logged and the plugin is marked
// degraded. If the initializer never signals done, LoadPlugin blocks until
// ctx is cancelled and the path stays pending.
func (a *Ark) LoadPlugin(ctx context.Context, name string, args ...any) (string, error) {
	path, err := a.resolver.Resolve(name)
	if err != nil {
		a.logger.Error("Plugin not found", "plugin", name, "err", err)
		return name, err
	}

	if e, ok := a.store.lookup(path); ok {
		return a.reenter(ctx, name, e)
	}

	md, err := a.metadata(path)
	if err != nil {
		a.logger.Error("Invalid plugin manifest", "plugin", name, "path", path, "err", err)
		return name, err
	}

	// Pending must be visible before anything below can block.
	e, fresh := a.store.MarkPending(path, name, md)
	if !fresh {
		return a.reenter(ctx, name, e)
	}
	a.logger.Debug("Loading plugin", "plugin", name, "path", path, "requires", md.Requires)

	if err := a.deps.EnsureAll(ctx, md, name); err != nil {
		a.abandon(path, err)
		return name, err
	}

	init, err := a.provider.Initializer(path)
	if err != nil {
		a.store.Clear(path)
		a.logger.Error("No plugin initializer", "plugin", name, "path", path, "err", err)
		return name, &ProviderError{Name: name, Path: path, Err: err}
	}

	failure, err := a.invoke(ctx, name, path, init, args)
	if err != nil {
		return name, err
	}

	if !a.store.MarkLoaded(e, init, failure) {
		a.logger.Debug("Load superseded by reload", "plugin", name, "path", path)
		return name, nil
	}

	if failure != nil {
		ev := NewEvent(EventPluginFailed, name, path)
		ev.Err = failure
		a.Emit(ev)
	}
	a.Emit(NewEvent(EventPluginLoaded, name, path))
	a.logger.Info("Plugin loaded", "plugin", name, "path", path, "state", a.store.Get(path))

	return name, nil
}

// RunPlugin invokes the stored initializer of a loaded plugin again with a
// fresh completion signal, without touching its dependencies. A plugin
// that is not loaded yet is loaded instead.
func (a *Ark) RunPlugin(ctx context.Context, name string, args ...any) (string, error) {
	path, err := a.resolver.Resolve(name)
	if err != nil {
		return name, err
	}

	init, ok := a.store.Initializer(path)
	if !ok {
		return a.LoadPlugin(ctx, name, args...)
	}

	failure, err := a.invoke(ctx, name, path, init, args)
	if err != nil {
		return name, err
	}

	ev := NewEvent(EventPluginRun, name, path)
	ev.Args = args
	ev.Err = failure
	a.Emit(ev)

	return name, nil
}

// ReloadPlugin forgets a plugin's state and cached module, then loads it
// again so its initializer runs afresh.
func (a *Ark) ReloadPlugin(ctx context.Context, name string, args ...any) (string, error) {
	path, err := a.resolver.Resolve(name)
	if err != nil {
		return name, err
	}

	a.store.Clear(path)
	a.provider.Forget(path)
	a.logger.Info("Reloading plugin", "plugin", name, "path", path)

	if _, err := a.LoadPlugin(ctx, name, args...); err != nil {
		return name, fmt.Errorf("reload %s: %w", name, err)
	}

	a.Emit(NewEvent(EventPluginReloaded, name, path))
	return name, nil
}

// Resolve returns the canonical path for name.
func (a *Ark) Resolve(name string) (string, error) {
	return a.resolver.Resolve(name)
}

// Describe resolves name and returns its canonical path together with the
// dependencies it declares. Nothing is loaded.
func (a *Ark) Describe(name string) (string, Metadata, error) {
	path, err := a.resolver.Resolve(name)
	if err != nil {
		return "", Metadata{}, err
	}
	md, err := a.metadata(path)
	if err != nil {
		return path, Metadata{}, err
	}
	return path, md, nil
}

// State returns the load state of name.
func (a *Ark) State(name string) (LoadState, error) {
	path, err := a.resolver.Resolve(name)
	if err != nil {
		return StateUnseen, err
	}
	return a.store.Get(path), nil
}

// Plugins returns the status of every tracked plugin in first-seen order.
func (a *Ark) Plugins() []Status {
	return a.store.Snapshot()
}

// Waiting returns the paths currently pending.
func (a *Ark) Waiting() []string {
	return a.store.Waiting()
}

// Imports returns the shared imports registry.
func (a *Ark) Imports() *Imports {
	return a.imports
}

// Paths returns the search paths, base path first.
func (a *Ark) Paths() []string {
	return a.resolver.Paths()
}

// Logger returns the Ark's logger.
func (a *Ark) Logger() *log.Logger {
	return a.logger
}

// Emit publishes an event.
func (a *Ark) Emit(event Event) {
	a.events.emit(event)
}

// On subscribes to one event type.
func (a *Ark) On(eventType EventType, handler EventHandler) func() {
	return a.events.subscribe(eventType, handler)
}

// Subscribe subscribes to every event.
func (a *Ark) Subscribe(handler EventHandler) func() {
	return a.events.subscribe("", handler)
}

// reenter handles a load request for a path that is already known.
func (a *Ark) reenter(ctx context.Context, name string, e *entry) (string, error) {
	if a.reentry != ReentryAwait {
		return name, nil
	}
	select {
	case <-e.settled:
		return name, nil
	case <-ctx.Done():
		return name, ctx.Err()
	}
}

// metadata returns the dependency declaration for path.
func (a *Ark) metadata(path string) (Metadata, error) {
	if mp, ok := a.provider.(MetadataProvider); ok {
		if md, ok := mp.Metadata(path); ok {
			return md, nil
		}
	}
	if !isDirectory(path) {
		return Metadata{}, nil
	}
	return a.readManifest(path)
}

// abandon drops a pending entry after a fatal error. Cancellation leaves
// the entry pending, the same as an initializer that never signals.
func (a *Ark) abandon(path string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	a.store.Clear(path)
}

// invoke calls init and waits for its completion signal. A failed
// invocation is returned as failure and done is signalled on its behalf;
// err is only set when ctx ends the wait.
func (a *Ark) invoke(ctx context.Context, name, path string, init Initializer, args []any) (failure error, err error) {
	signalled := make(chan struct{})
	var once sync.Once
	done := Done(func() {
		once.Do(func() { close(signalled) })
	})

	if callErr := callInitializer(ctx, init, a, a.imports, done, args); callErr != nil {
		failure = &InitializerError{Name: name, Path: path, Err: callErr}
		a.logger.Error("Plugin initializer failed", "plugin", name, "path", path, "err", callErr)
		done()
	}

	select {
	case <-signalled:
		return failure, nil
	default:
	}

	select {
	case <-signalled:
		return failure, nil
	case <-ctx.Done():
		return failure, ctx.Err()
	}
}

// callInitializer runs init, turning a panic into an error.
func callInitializer(ctx context.Context, init Initializer, host Host, imports *Imports, done Done, args []any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return init(ctx, host, imports, done, args...)
}

// logWaiting is the default idle reporter.
func (a *Ark) logWaiting(waiting []string) {
	a.logger.Warn("Plugins still waiting", "count", len(waiting), "paths", strings.Join(waiting, ", "))
}
