// Package watcher reports file system changes under plugin directories.
//
// A Watcher tracks plugin roots. Every directory below a root is watched
// and each change is reported against the root it belongs to, so a
// consumer can reload the plugin as a whole. Debounced wraps a Watcher and
// coalesces bursts of changes into one event per root.
package watcher

import (
	"errors"
	"time"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed   = errors.New("watcher is closed")
	ErrAlreadyWatching = errors.New("path is already being watched")
	ErrNotWatching     = errors.New("path is not being watched")
	ErrPathNotExist    = errors.New("path does not exist")
)

// Op represents the type of file system operation.
type Op uint32

const (
	// OpCreate indicates a file or directory was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written to.
	OpWrite
	// OpRemove indicates a file or directory was removed.
	OpRemove
	// OpRename indicates a file or directory was renamed.
	OpRename
	// OpChmod indicates file permissions were changed.
	OpChmod
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	case OpRename:
		return "RENAME"
	case OpChmod:
		return "CHMOD"
	default:
		return "UNKNOWN"
	}
}

// Has returns true if the operation includes the given op.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event is a change under a watched plugin root.
type Event struct {
	// Root is the watched plugin directory the change belongs to.
	Root string

	// Path is the file or directory that changed.
	Path string

	// Op is the operation that occurred. Debounced events carry the union
	// of every op seen in the window.
	Op Op

	// Timestamp is when the (last) change was seen.
	Timestamp time.Time
}

// Config holds watcher configuration.
type Config struct {
	// BufferSize is the capacity of the event and error channels.
	BufferSize int

	// IgnoreHidden skips files and directories starting with a dot.
	IgnoreHidden bool

	// Ops limits reported events to these operations. Zero reports all.
	Ops Op
}

// DefaultConfig returns the default configuration. Chmod is not reported
// since it never changes what a plugin loads.
func DefaultConfig() Config {
	return Config{
		BufferSize:   100,
		IgnoreHidden: true,
		Ops:          OpCreate | OpWrite | OpRemove | OpRename,
	}
}

// Option configures a Watcher.
type Option func(*Config)

// WithIgnoreHidden toggles skipping of dot files.
func WithIgnoreHidden(ignore bool) Option {
	return func(c *Config) {
		c.IgnoreHidden = ignore
	}
}

// WithOps limits the operations reported.
func WithOps(ops Op) Option {
	return func(c *Config) {
		c.Ops = ops
	}
}
