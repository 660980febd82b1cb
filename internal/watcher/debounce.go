package watcher

import (
	"sync"
	"time"
)

// DefaultDebounce is used when a non-positive delay is given.
const DefaultDebounce = 100 * time.Millisecond

// Debounced wraps a Watcher and coalesces events per plugin root. A burst
// of saves inside one plugin directory becomes a single event, delivered
// once the root has been quiet for the delay.
type Debounced struct {
	inner *Watcher
	delay time.Duration

	mu       sync.Mutex
	pending  map[string]*pendingEvent
	events   chan Event
	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// pendingEvent tracks a debounced event.
type pendingEvent struct {
	event Event
	timer *time.Timer
}

// NewDebounced creates a debounced wrapper around inner.
func NewDebounced(inner *Watcher, delay time.Duration) *Debounced {
	if delay <= 0 {
		delay = DefaultDebounce
	}

	d := &Debounced{
		inner:   inner,
		delay:   delay,
		pending: make(map[string]*pendingEvent),
		events:  make(chan Event, cap(inner.events)),
		closeCh: make(chan struct{}),
	}

	d.closedWg.Add(1)
	go d.processLoop()

	return d
}

// Watch starts watching a plugin root.
func (d *Debounced) Watch(root string) error {
	return d.inner.Watch(root)
}

// Unwatch stops watching a plugin root and drops its pending event.
func (d *Debounced) Unwatch(root string) error {
	if err := d.inner.Unwatch(root); err != nil {
		return err
	}
	root, _ = canonical(root)
	d.mu.Lock()
	if p, ok := d.pending[root]; ok {
		p.timer.Stop()
		delete(d.pending, root)
	}
	d.mu.Unlock()
	return nil
}

// IsWatching returns true if root is watched.
func (d *Debounced) IsWatching(root string) bool {
	return d.inner.IsWatching(root)
}

// Roots returns the watched roots.
func (d *Debounced) Roots() []string {
	return d.inner.Roots()
}

// Events returns the debounced event channel.
func (d *Debounced) Events() <-chan Event {
	return d.events
}

// Errors returns the inner watcher's error channel.
func (d *Debounced) Errors() <-chan error {
	return d.inner.Errors()
}

// Close stops the debounced watcher and the watcher it wraps.
func (d *Debounced) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.closeCh)

	for root, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, root)
	}
	d.mu.Unlock()

	// The inner watcher closes its channels, which ends processLoop.
	err := d.inner.Close()
	d.closedWg.Wait()
	close(d.events)
	return err
}

// processLoop handles incoming events from the inner watcher.
func (d *Debounced) processLoop() {
	defer d.closedWg.Done()

	for {
		select {
		case <-d.closeCh:
			return
		case event, ok := <-d.inner.Events():
			if !ok {
				return
			}
			d.handleEvent(event)
		}
	}
}

// handleEvent merges event into the pending event for its root and
// restarts the root's timer.
func (d *Debounced) handleEvent(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	if p, exists := d.pending[event.Root]; exists {
		p.event.Op |= event.Op
		p.event.Path = event.Path
		p.event.Timestamp = event.Timestamp
		p.timer.Reset(d.delay)
		return
	}

	root := event.Root
	p := &pendingEvent{event: event}
	p.timer = time.AfterFunc(d.delay, func() {
		d.fire(root)
	})
	d.pending[root] = p
}

// fire sends the pending event of root. The send happens under the lock
// and never blocks, so it cannot race Close.
func (d *Debounced) fire(root string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, exists := d.pending[root]
	if !exists || d.closed {
		return
	}
	delete(d.pending, root)

	select {
	case d.events <- p.event:
	default:
		// Channel full, drop event
	}
}

// TotalEvents returns the number of raw events the inner watcher delivered.
func (d *Debounced) TotalEvents() int64 {
	return d.inner.TotalEvents()
}

// TotalErrors returns the number of errors the inner watcher saw.
func (d *Debounced) TotalErrors() int64 {
	return d.inner.TotalErrors()
}

// PendingCount returns the number of roots with a pending event.
func (d *Debounced) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
