// Package events carries lifecycle events (spawn, catalog refresh, stream
// start/end) from the gateway components to an optional observer.
package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// Event represents a lifecycle event.
// Minimal and stable: name + subject and optional fields via key/values.
type Event struct {
	Name    string
	Subject string
	Fields  map[string]any
}

// Publisher receives events. Implementations should be lightweight and
// non-blocking; Publish must not panic.
type Publisher interface {
	Publish(Event)
}

// Noop is the default; it drops events.
type Noop struct{}

func (Noop) Publish(Event) {}

// OrNoop returns p, or Noop when p is nil.
func OrNoop(p Publisher) Publisher {
	if p == nil {
		return Noop{}
	}
	return p
}

// Memory stores events in-memory for tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory { return &Memory{} }

func (p *Memory) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *Memory) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Names returns the event names in publish order.
func (p *Memory) Names() []string {
	evts := p.Events()
	out := make([]string, 0, len(evts))
	for _, e := range evts {
		out = append(out, e.Name)
	}
	return out
}

// Log writes every event to a zerolog logger at debug level.
type Log struct {
	Logger zerolog.Logger
}

func (p Log) Publish(e Event) {
	ev := p.Logger.Debug().Str("event", e.Name)
	if e.Subject != "" {
		ev = ev.Str("subject", e.Subject)
	}
	if len(e.Fields) > 0 {
		ev = ev.Fields(e.Fields)
	}
	ev.Msg("lifecycle event")
}

// Fanout publishes to every non-nil publisher in order.
type Fanout []Publisher

func (f Fanout) Publish(e Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(e)
		}
	}
}
