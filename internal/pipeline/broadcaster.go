// Package pipeline provides a generic pub/sub fan-out used anywhere the
// gateway needs to push a value to many subscribers without blocking the
// producer on a slow one: recording status snapshots and device-list
// snapshots share this primitive. Sync/mirror dispatch (internal/syncfabric)
// does not use it.
package pipeline

import (
	"sync"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/util"
)

// Broadcaster fans a value of type T out to any number of subscribers. A
// subscriber whose channel is full is dropped rather than allowed to
// block the broadcast — there is no backpressure from slow consumers.
type Broadcaster[T any] struct {
	mu          sync.RWMutex
	subscribers map[string]chan<- T
	snapshot    T
	hasSnapshot bool
	closed      bool
}

func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		subscribers: make(map[string]chan<- T),
	}
}

// SetSnapshot caches the latest value so new subscribers get it
// immediately on Subscribe, before the next live Broadcast.
func (b *Broadcaster[T]) SetSnapshot(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshot = v
	b.hasSnapshot = true
}

// Subscribe registers id and returns a receive-only channel. If a
// snapshot is cached it is delivered immediately (best-effort).
func (b *Broadcaster[T]) Subscribe(id string, bufferSize int) <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan T)
		close(ch)
		return ch
	}

	ch := make(chan T, bufferSize)
	b.subscribers[id] = ch

	if b.hasSnapshot {
		select {
		case ch <- b.snapshot:
		default:
			util.GetLogger().Warn("broadcaster: snapshot dropped, subscriber channel full", "id", id)
		}
	}
	return ch
}

func (b *Broadcaster[T]) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Broadcast sends v to every current subscriber, dropping (and
// unsubscribing) any whose channel is full.
func (b *Broadcaster[T]) Broadcast(v T) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make(map[string]chan<- T, len(b.subscribers))
	for id, ch := range b.subscribers {
		subs[id] = ch
	}
	b.mu.RUnlock()

	var dropped []string
	for id, ch := range subs {
		select {
		case ch <- v:
		default:
			dropped = append(dropped, id)
		}
	}

	if len(dropped) > 0 {
		b.mu.Lock()
		for _, id := range dropped {
			if ch, ok := b.subscribers[id]; ok {
				close(ch)
				delete(b.subscribers, id)
			}
		}
		b.mu.Unlock()
	}
}

func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}

func (b *Broadcaster[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
