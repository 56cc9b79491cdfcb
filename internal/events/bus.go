package events

import "sync"

// Topics carried by the bus. Guest cart changes have two producers: the
// store itself after a local mutation, and the storage watcher when another
// process wrote to the shared file. Both funnel into the same subscribers.
const (
	TopicGuestCartChanged = "guest-cart-changed"
	TopicSessionChanged   = "session-changed"
)

// Bus is a minimal in-process publish/subscribe channel. Publish never
// blocks on subscribers; handlers run synchronously on the publishing
// goroutine in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func()
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]map[int]func()),
	}
}

// Subscribe registers handler for topic and returns an unsubscribe func.
func (b *Bus) Subscribe(topic string, handler func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]func())
	}
	id := b.nextID
	b.nextID++
	b.subs[topic][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// Publish invokes every handler subscribed to topic.
func (b *Bus) Publish(topic string) {
	b.mu.RLock()
	handlers := make([]func(), 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h()
	}
}
