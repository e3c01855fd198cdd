package service

import "sync"

// Resource names carried on events.
const (
	ResourceAssets      = "assets"
	ResourceConsumables = "consumables"
)

// Event actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Event represents a resource mutation.
type Event struct {
	Resource string // e.g. "assets"
	Action   string // "created", "updated", "deleted"
	ID       string // resource ID
}

// EventBus fans out resource change events to open GIS pages. Services
// publish after every committed asset or consumable mutation, and each page
// stream refreshes the one asset an event names.
//
// Delivery is best effort. A subscriber whose buffer is full misses the
// event rather than stalling the publisher, so a page can fall behind the
// registry until the next event for that asset. The server owns one bus;
// there is no package-level instance.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]struct{})}
}

// Publish sends an event to all subscribers (non-blocking).
// A nil bus drops the event.
func (b *EventBus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a channel buffering up to 16 events.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown channels
// are ignored so a deferred Unsubscribe after Close is harmless.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

// Len returns the number of subscribers.
func (b *EventBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
