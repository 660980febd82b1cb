package plugin

import "sync"

// Imports is the shared capability registry. One instance is handed by
// reference to every initializer an Ark invokes, so values set by a
// dependency are visible to everything loaded after it.
type Imports struct {
	mu     sync.RWMutex
	values map[string]any
	order  []string
}

// NewImports creates an empty registry.
func NewImports() *Imports {
	return &Imports{
		values: make(map[string]any),
	}
}

// Get returns the value stored under key.
func (i *Imports) Get(key string) (any, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	v, ok := i.values[key]
	return v, ok
}

// Set stores value under key, replacing any previous value.
func (i *Imports) Set(key string, value any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, exists := i.values[key]; !exists {
		i.order = append(i.order, key)
	}
	i.values[key] = value
}

// Has returns true if key is present.
func (i *Imports) Has(key string) bool {
	_, ok := i.Get(key)
	return ok
}

// Func returns the value under key if it is a callable capability.
func (i *Imports) Func(key string) (Func, bool) {
	v, ok := i.Get(key)
	if !ok {
		return nil, false
	}
	switch fn := v.(type) {
	case Func:
		return fn, true
	case func(args ...any) ([]any, error):
		return fn, true
	default:
		return nil, false
	}
}

// Keys returns the keys in the order they were first set.
func (i *Imports) Keys() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	keys := make([]string, len(i.order))
	copy(keys, i.order)
	return keys
}

// Len returns the number of entries.
func (i *Imports) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.values)
}

// Snapshot returns a shallow copy of the registry contents.
func (i *Imports) Snapshot() map[string]any {
	i.mu.RLock()
	defer i.mu.RUnlock()
	snap := make(map[string]any, len(i.values))
	for k, v := range i.values {
		snap[k] = v
	}
	return snap
}
