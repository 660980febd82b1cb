package lua

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/ark/internal/plugin"
)

// DefaultEntryFiles are the script names looked up in a plugin directory,
// in order.
var DefaultEntryFiles = []string{"init.lua", "plugin.lua"}

// Provider serves plugin directories that contain a Lua entry script.
// Each plugin gets its own sandboxed state; compiled chunks are cached
// per path until Forget.
type Provider struct {
	mu sync.Mutex

	entryFiles   []string
	capabilities []Capability

	protos map[string]*lua.FunctionProto
	states map[string]*State
}

var _ plugin.Provider = (*Provider)(nil)

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithEntryFiles replaces DefaultEntryFiles.
func WithEntryFiles(names ...string) ProviderOption {
	return func(p *Provider) {
		if len(names) > 0 {
			p.entryFiles = names
		}
	}
}

// WithGrants grants capabilities to every plugin state.
func WithGrants(caps ...Capability) ProviderOption {
	return func(p *Provider) {
		p.capabilities = append(p.capabilities, caps...)
	}
}

// NewProvider creates a Lua provider.
func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{
		entryFiles: DefaultEntryFiles,
		protos:     make(map[string]*lua.FunctionProto),
		states:     make(map[string]*State),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Lookup never resolves names; Lua plugins are always directories.
func (p *Provider) Lookup(name string) (string, error) {
	return "", fmt.Errorf("%w: %s is not a lua plugin directory", plugin.ErrPluginNotFound, name)
}

// Initializer compiles the entry script of path (once) and runs it in a
// fresh state to obtain the plugin's entry function.
func (p *Provider) Initializer(path string) (plugin.Initializer, error) {
	if strings.HasPrefix(path, plugin.BuiltinScheme) {
		return nil, fmt.Errorf("%w: %s", plugin.ErrNoInitializer, path)
	}
	script := p.entryFile(path)
	if script == "" {
		return nil, fmt.Errorf("%w: no %s in %s", plugin.ErrNoInitializer, strings.Join(p.entryFiles, " or "), path)
	}

	proto, err := p.compile(path, script)
	if err != nil {
		return nil, err
	}

	state, err := NewState(WithCapabilities(p.capabilities...))
	if err != nil {
		return nil, err
	}
	bridge := NewBridge(state.L)
	registerImportsType(bridge)

	entry, err := state.Entry(proto)
	if err != nil {
		state.Close()
		return nil, fmt.Errorf("%s: %w", script, err)
	}

	p.mu.Lock()
	if old, ok := p.states[path]; ok {
		old.Close()
	}
	p.states[path] = state
	p.mu.Unlock()

	return func(ctx context.Context, host plugin.Host, imports *plugin.Imports, done plugin.Done, args ...any) error {
		if state.IsClosed() {
			return ErrStateClosed
		}
		name := filepath.Base(path)
		installHost(ctx, state, bridge, host, name, path)

		luaArgs := []lua.LValue{
			importsProxy(state.L, imports),
			state.L.NewFunction(func(*lua.LState) int {
				done()
				return 0
			}),
		}
		for _, arg := range args {
			luaArgs = append(luaArgs, bridge.ToLuaValue(arg))
		}

		_, err := state.Call(entry, luaArgs...)
		return err
	}, nil
}

// Forget closes the state of path and drops its compiled chunk.
func (p *Provider) Forget(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.protos, path)
	if state, ok := p.states[path]; ok {
		state.Close()
		delete(p.states, path)
	}
}

// Close closes every state.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for path, state := range p.states {
		state.Close()
		delete(p.states, path)
	}
	return nil
}

// entryFile returns the first entry script present in dir.
func (p *Provider) entryFile(dir string) string {
	for _, name := range p.entryFiles {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

// compile returns the cached chunk for path, compiling script on a miss.
func (p *Provider) compile(path, script string) (*lua.FunctionProto, error) {
	p.mu.Lock()
	proto, ok := p.protos[path]
	p.mu.Unlock()
	if ok {
		return proto, nil
	}

	proto, err := Compile(script)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.protos[path] = proto
	p.mu.Unlock()
	return proto, nil
}
