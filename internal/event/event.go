// Package event streams pipeline progress to whoever is listening on a
// session.
package event

import (
	"sync"
	"time"
)

// Type is the kind of an Event.
type Type string

const (
	TypeUserMessage Type = "user_message"
	TypeInternal    Type = "internal_communication"
	TypeConnection  Type = "connection"
)

// Event is one message pushed to a session's subscribers. It is never stored.
type Event struct {
	Type      Type           `json:"type"`
	Phase     string         `json:"phase,omitempty"`
	Speaker   string         `json:"speaker,omitempty"`
	Role      string         `json:"role,omitempty"`
	Message   string         `json:"message"`
	Error     bool           `json:"error,omitempty"`
	CanRetry  bool           `json:"canRetry,omitempty"`
	Retry     bool           `json:"retry,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink accepts events for a session. Send must not block and has no
// failure mode visible to the caller.
type Sink interface {
	Send(sessionID string, ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(sessionID string, ev Event)

func (f SinkFunc) Send(sessionID string, ev Event) { f(sessionID, ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(string, Event) {})

// Broker fans events out to per-session subscriber channels. A session
// with no subscribers silently drops its events, and a subscriber whose
// buffer is full misses events instead of stalling the sender.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan Event
	nextID int
	buffer int
}

// NewBroker creates a Broker whose subscriber channels hold buffer events.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{
		subs:   make(map[string]map[int]chan Event),
		buffer: buffer,
	}
}

// Send delivers ev to every subscriber of sessionID without blocking.
func (b *Broker) Send(sessionID string, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[sessionID] {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; drop.
		}
	}
}

// Subscribe registers a subscriber for sessionID. The returned cancel
// function unregisters it and closes the channel; it is safe to call twice.
func (b *Broker) Subscribe(sessionID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[int]chan Event)
	}
	b.subs[sessionID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[sessionID]; ok {
				if c, ok := set[id]; ok {
					delete(set, id)
					close(c)
				}
				if len(set) == 0 {
					delete(b.subs, sessionID)
				}
			}
		})
	}
	return ch, cancel
}

// Close drops every subscriber of sessionID and closes their channels.
func (b *Broker) Close(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs[sessionID] {
		close(ch)
		delete(b.subs[sessionID], id)
	}
	delete(b.subs, sessionID)
}

// Subscribers returns the number of live subscribers for sessionID.
func (b *Broker) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}
