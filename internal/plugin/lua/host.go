package lua

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/ark/internal/plugin"
)

// importsTypeName is the metatable name of the imports proxy.
const importsTypeName = "ark.imports"

// installHost sets the global ark table for one initializer invocation.
// The table is rebuilt every time so its calls carry the invocation's ctx.
// Subscriptions made through ark.on end when state closes.
func installHost(ctx context.Context, state *State, b *Bridge, host plugin.Host, name, path string) {
	L := b.L
	logger := host.Logger().With("plugin", name)

	loadFn := func(call func(context.Context, string, ...any) (string, error)) lua.LGFunction {
		return func(L *lua.LState) int {
			target := L.CheckString(1)
			args := make([]any, 0, L.GetTop())
			for i := 2; i <= L.GetTop(); i++ {
				args = append(args, b.ToGoValue(L.Get(i)))
			}
			resolved, err := call(ctx, target, args...)
			if err != nil {
				L.RaiseError("%s", err.Error())
				return 0
			}
			L.Push(lua.LString(resolved))
			return 1
		}
	}

	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"load":   loadFn(host.LoadPlugin),
		"run":    loadFn(host.RunPlugin),
		"reload": loadFn(host.ReloadPlugin),

		"emit": func(L *lua.LState) int {
			ev := plugin.NewEvent(plugin.EventType(L.CheckString(1)), name, path)
			if L.GetTop() >= 2 {
				ev.Payload = b.ToGoValue(L.Get(2))
			}
			host.Emit(ev)
			return 0
		},

		"on": func(L *lua.LState) int {
			eventType := plugin.EventType(L.CheckString(1))
			handler := L.CheckFunction(2)
			unsubscribe := host.On(eventType, func(ev plugin.Event) {
				if state.IsClosed() {
					return
				}
				if _, err := b.CallFunc(handler, eventTable(ev)); err != nil {
					logger.Error("Event handler failed", "event", ev.Type, "err", err)
				}
			})
			state.OnClose(unsubscribe)
			L.Push(L.NewFunction(func(*lua.LState) int {
				unsubscribe()
				return 0
			}))
			return 1
		},

		"has": func(L *lua.LState) int {
			c, ok := ParseCapability(L.CheckString(1))
			L.Push(lua.LBool(ok && state.Sandbox().HasCapability(c)))
			return 1
		},

		"log": func(L *lua.LState) int {
			level, err := log.ParseLevel(L.CheckString(1))
			if err != nil {
				level = log.InfoLevel
			}
			msg := L.CheckString(2)
			var keyvals []any
			for i := 3; i <= L.GetTop(); i++ {
				keyvals = append(keyvals, b.ToGoValue(L.Get(i)))
			}
			logger.Log(level, msg, keyvals...)
			return 0
		},
	})
	L.SetField(mod, "name", lua.LString(name))
	L.SetField(mod, "path", lua.LString(path))
	state.SetGlobal("ark", mod)
}

// eventTable flattens an event for Lua handlers.
func eventTable(ev plugin.Event) map[string]any {
	t := map[string]any{
		"id":      ev.ID,
		"type":    string(ev.Type),
		"name":    ev.Name,
		"path":    ev.Path,
		"payload": ev.Payload,
	}
	if len(ev.Args) > 0 {
		t["args"] = ev.Args
	}
	if ev.Err != nil {
		t["err"] = ev.Err.Error()
	}
	return t
}

// registerImportsType installs the metatable backing the imports proxy.
// Indexing the proxy reads the shared registry and assigning to it writes
// the registry, so Lua plugins use it like a plain table.
func registerImportsType(b *Bridge) {
	L := b.L
	mt := L.NewTypeMetatable(importsTypeName)

	L.SetField(mt, "__index", L.NewFunction(func(L *lua.LState) int {
		imports := checkImports(L)
		v, ok := imports.Get(L.CheckString(2))
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(b.ToLuaValue(v))
		return 1
	}))

	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		imports := checkImports(L)
		imports.Set(L.CheckString(2), b.ToGoValue(L.Get(3)))
		return 0
	}))

	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		imports := checkImports(L)
		L.Push(lua.LString(fmt.Sprintf("imports(%d)", imports.Len())))
		return 1
	}))
}

// importsProxy wraps the registry in a userdata with the imports metatable.
func importsProxy(L *lua.LState, imports *plugin.Imports) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = imports
	L.SetMetatable(ud, L.GetTypeMetatable(importsTypeName))
	return ud
}

func checkImports(L *lua.LState) *plugin.Imports {
	ud := L.CheckUserData(1)
	if imports, ok := ud.Value.(*plugin.Imports); ok {
		return imports
	}
	L.ArgError(1, "imports expected")
	return nil
}
