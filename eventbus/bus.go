package eventbus

import (
	"log"
	"sync"
)

// subscriber is anything that can receive a stream of events; the
// gRPC stream wrapper in grpc.go implements this.
type subscriber interface {
	Send(Event) error
}

// Bus fans out published events to every currently connected
// subscriber, matching the teacher's Server.broadcast pattern in
// internal/api/server.go.
type Bus struct {
	mu   sync.Mutex
	subs map[subscriber]bool
}

// New builds an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[subscriber]bool)}
}

// Subscribe registers s to receive future published events. The
// returned function unsubscribes it.
func (b *Bus) Subscribe(s subscriber) func() {
	b.mu.Lock()
	b.subs[s] = true
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
	}
}

// Publish implements coordinator.EventPublisher and
// transcription.EventPublisher: it wraps name/payload into an Event
// and sends it to every connected subscriber, dropping (and logging)
// a subscriber whose Send fails rather than blocking the rest.
func (b *Bus) Publish(name string, payload map[string]any) {
	event := Event{Name: name, Payload: payload}

	b.mu.Lock()
	targets := make([]subscriber, 0, len(b.subs))
	for s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		if err := s.Send(event); err != nil {
			log.Printf("eventbus: dropping subscriber after send error: %v", err)
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
		}
	}
}
