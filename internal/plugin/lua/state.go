// Package lua provides a Lua module provider for the plugin loader.
package lua

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// State wraps gopher-lua with a sandbox for plugin execution.
//
// gopher-lua's LState is not goroutine-safe. Calls are not serialized here
// because a plugin may re-enter its own state (a dependency calling back
// into a function its requester published); the loader drives each plugin
// from one goroutine at a time. The mutex only guards the closed flag and
// close hooks.
type State struct {
	L *lua.LState

	mu sync.Mutex

	// Sandbox
	sandbox *Sandbox

	// Tracking
	closed  bool
	onClose []func()
}

// StateOption configures a State.
type StateOption func(*State)

// WithCapabilities grants capabilities right after the sandbox is installed.
func WithCapabilities(caps ...Capability) StateOption {
	return func(s *State) {
		for _, c := range caps {
			s.sandbox.Grant(c)
		}
	}
}

// NewState creates a new sandboxed Lua state.
func NewState(opts ...StateOption) (*State, error) {
	// Create Lua state with limited libraries
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true, // We'll open selectively
	})

	state := &State{L: L}

	// Open safe base libraries
	openSafeLibraries(L)

	state.sandbox = NewSandbox(L)
	state.sandbox.Install()

	for _, opt := range opts {
		opt(state)
	}

	return state, nil
}

// openSafeLibraries opens only safe Lua standard libraries.
func openSafeLibraries(L *lua.LState) {
	// Open base library (print, type, pairs, ipairs, etc.)
	lua.OpenBase(L)
	lua.OpenPackage(L)

	// Open safe libraries
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// Note: io, os and debug are only opened through capabilities
}

// Compile parses and compiles a Lua file without running it.
func Compile(path string) (*lua.FunctionProto, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	chunk, err := parse.Parse(bufio.NewReader(f), path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	proto, err := lua.Compile(chunk, path)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}
	return proto, nil
}

// Entry runs a compiled chunk and returns the plugin entry point: the
// function the chunk returns, or else a global named setup.
func (s *State) Entry(proto *lua.FunctionProto) (*lua.LFunction, error) {
	if s.IsClosed() {
		return nil, ErrStateClosed
	}

	var ret lua.LValue = lua.LNil
	err := s.doWithRecovery(func() error {
		s.L.Push(s.L.NewFunctionFromProto(proto))
		if err := s.L.PCall(0, 1, nil); err != nil {
			return err
		}
		ret = s.L.Get(-1)
		s.L.Pop(1)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if fn, ok := ret.(*lua.LFunction); ok {
		return fn, nil
	}
	if fn, ok := s.GetGlobal("setup").(*lua.LFunction); ok {
		return fn, nil
	}
	return nil, ErrNoSetup
}

// Call calls a Lua function with the given arguments.
// Returns an empty slice (not nil) if the function returns no values.
func (s *State) Call(fn *lua.LFunction, args ...lua.LValue) ([]lua.LValue, error) {
	if s.IsClosed() {
		return nil, ErrStateClosed
	}

	// Record stack top before pushing anything
	stackTop := s.L.GetTop()

	err := s.doWithRecovery(func() error {
		s.L.Push(fn)
		for _, arg := range args {
			s.L.Push(arg)
		}
		return s.L.PCall(len(args), lua.MultRet, nil)
	})
	if err != nil {
		s.L.SetTop(stackTop)
		return nil, err
	}

	// Collect return values (only the new values added after the call)
	nRet := s.L.GetTop() - stackTop
	if nRet <= 0 {
		return []lua.LValue{}, nil
	}
	results := make([]lua.LValue, nRet)
	for i := 0; i < nRet; i++ {
		results[i] = s.L.Get(stackTop + i + 1)
	}
	s.L.Pop(nRet)

	return results, nil
}

// doWithRecovery executes a function with panic recovery.
func (s *State) doWithRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// GetGlobal returns a global variable value.
func (s *State) GetGlobal(name string) lua.LValue {
	if s.IsClosed() {
		return lua.LNil
	}
	return s.L.GetGlobal(name)
}

// SetGlobal sets a global variable.
func (s *State) SetGlobal(name string, value lua.LValue) {
	if s.IsClosed() {
		return
	}
	s.L.SetGlobal(name, value)
}

// Sandbox returns the sandbox for capability management.
func (s *State) Sandbox() *Sandbox {
	return s.sandbox
}

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// OnClose registers fn to run when the state closes. On a closed state
// fn runs immediately.
func (s *State) OnClose(fn func()) {
	s.mu.Lock()
	if !s.closed {
		s.onClose = append(s.onClose, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn()
}

// Close releases all resources associated with the Lua state.
// After Close is called, all other methods will return ErrStateClosed.
func (s *State) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cleanups := s.onClose
	s.onClose = nil
	s.mu.Unlock()

	for _, fn := range cleanups {
		fn()
	}
	s.L.Close()
	return nil
}
