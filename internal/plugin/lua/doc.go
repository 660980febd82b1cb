// Package lua serves plugins written in Lua.
//
// A Lua plugin is a directory holding an entry script (init.lua, or
// plugin.lua) and optionally a manifest declaring its requirements. The
// script either returns its initializer or defines a global setup:
//
//	-- init.lua
//	return function(imports, done, ...)
//	    imports.greet = function(who) return "hello " .. who end
//	    ark.log("info", "greeter ready")
//	    done()
//	end
//
// # Provider
//
// Provider implements plugin.Provider. Each plugin directory gets its own
// sandboxed State, and the compiled chunk is cached until Forget (which the
// loader calls on reload).
//
// # Host table
//
// During an invocation the global ark table exposes the loader:
//   - ark.load(name, ...), ark.run(name, ...), ark.reload(name, ...)
//   - ark.emit(type, payload) and ark.on(type, fn)
//   - ark.log(level, msg, key, value, ...)
//   - ark.name and ark.path
//
// # Imports
//
// The imports argument is a proxy over the shared plugin.Imports registry.
// Lua functions stored in it become plugin.Func values callable from Go
// and from other plugins; Go capabilities read from it become callable
// Lua functions.
//
// # Sandbox
//
// States start with base, package, table, string, and math only. dofile,
// loadfile, load, and loadstring are removed and require is limited to
// built-in modules. Capabilities widen this:
//   - CapabilityEnv: os.getenv
//   - CapabilityFileRead: io.readall and io.lines
//   - CapabilityUnsafe: the full io, os, and debug libraries
package lua
