// Package events carries transition notifications from the reconciliation
// engine to whoever listens: websocket clients, the demo driver and the
// Redis relay.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/simaogato/lnmomo-backend/internal/domain"
)

// Bus is an in-process fan-out of TransitionEvents.
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Bus struct {
	origin string
	logger *slog.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]chan domain.TransitionEvent
}

// NewBus creates a bus stamping local events with origin
func NewBus(origin string, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		origin: origin,
		logger: logger,
		subs:   make(map[int]chan domain.TransitionEvent),
	}
}

// Origin identifies this process on the shared channel
func (b *Bus) Origin() string {
	return b.origin
}

// Publish delivers a locally produced event to every subscriber
func (b *Bus) Publish(ctx context.Context, event domain.TransitionEvent) {
	if event.Origin == "" {
		event.Origin = b.origin
	}
	b.deliver(event)
}

// Inject delivers an event produced by another process, keeping its origin
func (b *Bus) Inject(event domain.TransitionEvent) {
	b.deliver(event)
}

func (b *Bus) deliver(event domain.TransitionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.logger.Warn("dropping transition event for slow subscriber",
				"subscriber", id,
				"transaction_id", event.TransactionID,
				"to", event.To,
			)
		}
	}
}

// Subscribe registers a listener with the given buffer.
// The returned cancel func unregisters it and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan domain.TransitionEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.TransitionEvent, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active listeners
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
