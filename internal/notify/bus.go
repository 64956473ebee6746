package notify

import (
	"context"
	"sync"

	"github.com/joescharf/agentwatch/internal/models"
)

// subscriberBuffer bounds each subscriber's channel. A slow consumer loses
// its oldest pending records rather than stalling the publisher.
const subscriberBuffer = 64

// Bus is the in-process publish interface for resolved state changes. The
// core has no knowledge of its consumers; the websocket stream and any
// notification layer subscribe here.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan models.StateTransition
	nextID int
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan models.StateTransition)}
}

// Subscribe registers a consumer. The returned channel closes when ctx is
// cancelled or the bus shuts down.
func (b *Bus) Subscribe(ctx context.Context) <-chan models.StateTransition {
	ch := make(chan models.StateTransition, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
		b.mu.Unlock()
	}()

	return ch
}

// Publish delivers a transition to every subscriber without blocking. When a
// subscriber's buffer is full, its oldest pending record is dropped.
func (b *Bus) Publish(st models.StateTransition) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
