// Package config provides the configuration for the ark command.
//
// Configuration is organized in layers with higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  4. Command Line Flags      │  ← Highest priority
//	├─────────────────────────────┤
//	│  3. Environment Variables   │  ← ARK_*, BASE_PATH
//	├─────────────────────────────┤
//	│  2. Config File             │  ← ark.toml, ark.yaml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// Flags are applied by the caller after Load returns.
//
// # File format
//
//	base_path     = "./plugins"
//	paths         = ["./vendor/plugins"]
//	packages      = ["app"]
//	reentry       = "return"   # or "await"
//	idle_interval = "2s"
//
//	[log]
//	level  = "info"            # debug, info, warn, error
//	format = "auto"            # text, json, logfmt, auto
//
//	[watch]
//	enabled  = false
//	debounce = "200ms"
//
//	[lua]
//	capabilities = ["env"]
//
// The same keys are accepted in YAML.
package config
