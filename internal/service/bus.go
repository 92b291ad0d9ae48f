package service

import "sync"

// Event actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
	ActionReady   = "ready"
)

// Event is a change to a block.
type Event struct {
	Action string `json:"action" enum:"created,updated,deleted,ready"`
	Block  string `json:"block"`
}

// EventBus fans block events out to subscribers. A subscriber either
// follows one block or, with an empty id, all of them.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]string
}

// NewEventBus creates an event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]string)}
}

// Publish sends e to every matching subscriber without blocking.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, id := range b.subs {
		if id != "" && id != e.Block {
			continue
		}
		select {
		case ch <- e:
		default:
			// slow subscriber, drop
		}
	}
}

// Subscribe returns a buffered channel receiving the events of block id,
// or of every block when id is empty.
func (b *EventBus) Subscribe(id string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = id
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}
