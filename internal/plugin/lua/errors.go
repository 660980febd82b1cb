package lua

import "errors"

// Errors for Lua plugin operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrNoSetup is returned when a script neither returns a function nor
	// defines a global setup function.
	ErrNoSetup = errors.New("lua plugin must return a function or define setup")
)
