package main

import (
	"errors"
	"fmt"

	"github.com/dshills/ark/internal/config"
	"github.com/dshills/ark/internal/config/loader"
	"github.com/dshills/ark/internal/plugin"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

// ExitError signals a non-zero exit code without calling os.Exit in RunE
// handlers.
type ExitError struct {
	Code int
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCode maps an error to the process exit status. Configuration
// problems exit with 2, every other failure with 1.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var parseErr *loader.ParseError
	switch {
	case errors.Is(err, plugin.ErrInvalidConfig),
		errors.Is(err, config.ErrValidationFailed),
		errors.Is(err, config.ErrFileNotFound),
		errors.Is(err, loader.ErrUnsupportedFormat),
		errors.As(err, &parseErr):
		return exitConfig
	}
	return exitFailed
}
