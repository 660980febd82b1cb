package plugin

import (
	"sync"
	"time"
)

// entry is the tracked state of one canonical path.
type entry struct {
	name     string
	path     string
	state    LoadState
	metadata Metadata
	init     Initializer
	failure  error
	since    time.Time

	// settled is closed when the entry leaves StatePending, either by
	// completing or by being cleared.
	settled chan struct{}
}

// Status is a point-in-time view of a tracked plugin.
type Status struct {
	Name     string
	Path     string
	State    LoadState
	Requires []string
	Err      error
	Since    time.Time
}

// Store tracks load state per canonical path. The same path reached through
// different names is one entry.
type Store struct {
	mu sync.Mutex

	entries map[string]*entry

	// Paths in the order they became pending (for diagnostics)
	waiting []string

	// Paths in the order they were first tracked (for deterministic snapshots)
	order []string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
	}
}

// Get returns the state of a path.
func (s *Store) Get(path string) LoadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[path]; ok {
		return e.state
	}
	return StateUnseen
}

// lookup returns the entry of a path, if any.
func (s *Store) lookup(path string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[path]
	return e, ok
}

// IsKnown returns true if the path is pending or loaded.
func (s *Store) IsKnown(path string) bool {
	return s.Get(path).IsKnown()
}

// MarkPending transitions an unseen path to pending. If the path is already
// known, the existing entry is returned with false and nothing changes.
// The check and the transition happen under one lock so concurrent callers
// can never both start the same load.
func (s *Store) MarkPending(path, name string, md Metadata) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[path]; ok {
		return e, false
	}

	e := &entry{
		name:     name,
		path:     path,
		state:    StatePending,
		metadata: md.Clone(),
		since:    time.Now(),
		settled:  make(chan struct{}),
	}
	s.entries[path] = e
	s.waiting = append(s.waiting, path)
	s.trackOrder(path)
	return e, true
}

// MarkLoaded completes a pending entry. A nil failure gives StateLoaded,
// otherwise StateDegraded. Returns false if the entry was cleared or
// replaced in the meantime.
func (s *Store) MarkLoaded(e *entry, init Initializer, failure error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.entries[e.path]; !ok || current != e {
		return false
	}
	if e.state != StatePending {
		return false
	}

	e.init = init
	e.failure = failure
	e.since = time.Now()
	if failure != nil {
		e.state = StateDegraded
	} else {
		e.state = StateLoaded
	}
	s.removeWaiting(e.path)
	close(e.settled)
	return true
}

// Clear forgets a path entirely, dropping its initializer and metadata.
// A pending entry is settled so anyone awaiting it wakes up.
func (s *Store) Clear(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[path]
	if !ok {
		return
	}
	if e.state == StatePending {
		close(e.settled)
	}
	delete(s.entries, path)
	s.removeWaiting(path)
}

// Initializer returns the stored initializer of a loaded path.
func (s *Store) Initializer(path string) (Initializer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[path]
	if !ok || !e.state.IsLoaded() || e.init == nil {
		return nil, false
	}
	return e.init, true
}

// Waiting returns the pending paths in the order they became pending.
func (s *Store) Waiting() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, len(s.waiting))
	copy(paths, s.waiting)
	return paths
}

// Status returns the status of one path.
func (s *Store) Status(path string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[path]
	if !ok {
		return Status{Path: path, State: StateUnseen}, false
	}
	return e.status(), true
}

// Snapshot returns the status of every tracked path in first-seen order.
func (s *Store) Snapshot() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Status, 0, len(s.entries))
	for _, path := range s.order {
		if e, ok := s.entries[path]; ok {
			result = append(result, e.status())
		}
	}
	return result
}

// status builds a Status. Must be called with mu held.
func (e *entry) status() Status {
	return Status{
		Name:     e.name,
		Path:     e.path,
		State:    e.state,
		Requires: e.metadata.Clone().Requires,
		Err:      e.failure,
		Since:    e.since,
	}
}

// removeWaiting removes a path from the waiting list.
// Must be called with mu held.
func (s *Store) removeWaiting(path string) {
	for i, p := range s.waiting {
		if p == path {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			return
		}
	}
}

// trackOrder records the first time a path is seen.
// Must be called with mu held.
func (s *Store) trackOrder(path string) {
	for _, p := range s.order {
		if p == path {
			return
		}
	}
	s.order = append(s.order, path)
}
