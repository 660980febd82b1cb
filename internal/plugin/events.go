package plugin

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names an event on the Ark's event stream.
type EventType string

// Lifecycle events. Plugins may emit their own types alongside these.
const (
	// EventPluginLoaded is emitted once per completed load.
	EventPluginLoaded EventType = "plugin:loaded"
	// EventPluginRun is emitted once per RunPlugin invocation.
	EventPluginRun EventType = "plugin:run"
	// EventPluginReloaded is emitted after a reload finished loading.
	EventPluginReloaded EventType = "plugin:reloaded"
	// EventPluginFailed is emitted when an initializer fails.
	EventPluginFailed EventType = "plugin:failed"
)

// Event is a message on the Ark's event stream.
type Event struct {
	ID      string
	Type    EventType
	Name    string
	Path    string
	Args    []any
	Payload any
	Err     error
	Time    time.Time
}

// NewEvent creates an event with a fresh ID and timestamp.
func NewEvent(eventType EventType, name, path string) Event {
	return Event{
		ID:   uuid.NewString(),
		Type: eventType,
		Name: name,
		Path: path,
		Time: time.Now(),
	}
}

// EventHandler handles events.
// Handlers run synchronously on the emitting goroutine and must not block.
// Panics in handlers are recovered.
type EventHandler func(event Event)

// subscription pairs a handler with an optional type filter.
type subscription struct {
	filter  EventType
	handler EventHandler
}

// eventStream fans events out to subscribers.
type eventStream struct {
	mu   sync.RWMutex
	subs []*subscription
}

// subscribe adds a handler. An empty filter receives every event.
func (s *eventStream) subscribe(filter EventType, handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	sub := &subscription{filter: filter, handler: handler}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, existing := range s.subs {
			if existing == sub {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// emit sends an event to all matching handlers.
// Handlers are called outside the lock so they may subscribe or emit.
func (s *eventStream) emit(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	s.mu.RLock()
	subs := make([]*subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.RUnlock()

	for _, sub := range subs {
		if sub.filter != "" && sub.filter != event.Type {
			continue
		}
		func() {
			defer func() {
				recover() // Ignore panics from handlers
			}()
			sub.handler(event)
		}()
	}
}
