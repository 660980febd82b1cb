package plugin

import (
	"errors"
	"fmt"
	"strings"
)

// Plugin system errors.
var (
	// ErrPluginNotFound is returned when a plugin name resolves to nothing
	// under any base path or the provider lookup.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrInvalidConfig is returned when the initial plugin list is unusable.
	ErrInvalidConfig = errors.New("invalid plugin configuration")

	// ErrManifestShape is returned when a manifest declares requires that
	// are not an ordered list of names.
	ErrManifestShape = errors.New("malformed plugin manifest")

	// ErrInitializer marks a failure raised by a plugin initializer.
	// These failures are logged and swallowed by the Ark.
	ErrInitializer = errors.New("plugin initializer failed")

	// ErrNoInitializer is returned by a Provider that has no initializer
	// for the requested path.
	ErrNoInitializer = errors.New("no initializer for plugin path")
)

// ConfigError reports an invalid plugin list passed to Setup.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidConfig, e.Reason)
}

// Is reports whether target is ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// NotFoundError reports a plugin name that could not be resolved.
type NotFoundError struct {
	Name  string
	Paths []string
	Err   error // lookup failure, if any
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s: %q (searched %s)", ErrPluginNotFound, e.Name, strings.Join(e.Paths, ", "))
	if e.Err != nil && !errors.Is(e.Err, ErrPluginNotFound) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is ErrPluginNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrPluginNotFound
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// ManifestShapeError reports a manifest whose requires field is not a list
// of plugin names.
type ManifestShapeError struct {
	File   string
	Reason string
}

func (e *ManifestShapeError) Error() string {
	return fmt.Sprintf("%s %s: %s", ErrManifestShape, e.File, e.Reason)
}

// Is reports whether target is ErrManifestShape.
func (e *ManifestShapeError) Is(target error) bool {
	return target == ErrManifestShape
}

// InitializerError captures a failed initializer invocation.
type InitializerError struct {
	Name string
	Path string
	Err  error
}

func (e *InitializerError) Error() string {
	return fmt.Sprintf("plugin %q (%s): initializer failed: %v", e.Name, e.Path, e.Err)
}

// Is reports whether target is ErrInitializer.
func (e *InitializerError) Is(target error) bool {
	return target == ErrInitializer
}

func (e *InitializerError) Unwrap() error {
	return e.Err
}

// ProviderError reports that a resolved plugin could not produce an
// initializer.
type ProviderError struct {
	Name string
	Path string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("plugin %q (%s): %v", e.Name, e.Path, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
