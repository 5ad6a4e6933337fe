package bus

import "sync"

// Broadcaster is an in-memory EventPublisher: subscribers keyed by id,
// broadcast fans out synchronously to each registered handler.
type Broadcaster struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{handlers: make(map[string]EventHandler)}
}

func (b *Broadcaster) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[id] = handler
}

func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

func (b *Broadcaster) Broadcast(event TaskEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.handlers {
		h(event)
	}
}
