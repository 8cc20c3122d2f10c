package event

import (
	"context"
	"sync"
)

type Handler func(ctx context.Context, evt Event)

// Publisher is the narrow view controllers get of the bus.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// Bus is a synchronous in-process pub/sub. Handlers for the event's name run
// first, then handlers subscribed to everything, each in subscription order.
type Bus struct {
	handlers    map[Name][]Handler
	allHandlers []Handler
	mu          sync.RWMutex
	closed      bool
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[Name][]Handler),
	}
}

func (b *Bus) Subscribe(name Name, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allHandlers = append(b.allHandlers, h)
}

func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	typed := b.handlers[evt.Name]
	all := b.allHandlers
	b.mu.RUnlock()

	for _, h := range typed {
		h(ctx, evt)
	}
	for _, h := range all {
		h(ctx, evt)
	}
}

// Close stops dispatch; later Publish calls are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

func (b *Bus) HandlerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.allHandlers)
	for _, hs := range b.handlers {
		count += len(hs)
	}
	return count
}

var _ Publisher = (*Bus)(nil)
