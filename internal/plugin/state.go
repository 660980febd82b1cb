package plugin

// LoadState represents the lifecycle state of a plugin path.
type LoadState int

// Load states.
const (
	// StateUnseen - No load has reached this path yet.
	StateUnseen LoadState = iota

	// StatePending - Dependencies or the initializer are in flight.
	StatePending

	// StateLoaded - The initializer signalled completion.
	StateLoaded

	// StateDegraded - The initializer failed but the load was completed
	// anyway so dependents could proceed.
	StateDegraded
)

// String returns a string representation of the state.
func (s LoadState) String() string {
	switch s {
	case StateUnseen:
		return "unseen"
	case StatePending:
		return "pending"
	case StateLoaded:
		return "loaded"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// IsLoaded returns true if the plugin completed its load, healthy or not.
func (s LoadState) IsLoaded() bool {
	return s == StateLoaded || s == StateDegraded
}

// IsKnown returns true if a load has reached this path.
func (s LoadState) IsKnown() bool {
	return s != StateUnseen
}
