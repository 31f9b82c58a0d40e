// Package stream fans newly stored audit records out to live subscribers.
package stream

import (
	"context"
	"sync"

	"arteng.org/internal/audit"
)

const subscriberBuffer = 16

type subscriber struct {
	ch     chan audit.Record
	filter audit.Filter
}

// Hub fan-outs audit records to all active subscribers (SSE clients).
type Hub struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

// New initialises an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber and returns a channel receiving records
// that match f. Pagination fields of f are ignored. The channel is closed
// when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, f audit.Filter) <-chan audit.Record {
	f = f.Sanitize()
	ch := make(chan audit.Record, subscriberBuffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = subscriber{ch: ch, filter: f}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Emit publishes r to every matching subscriber. It implements audit.Sink.
func (h *Hub) Emit(r audit.Record) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if !s.filter.Match(r) {
			continue
		}
		select {
		case s.ch <- r:
		default:
			// Drop when subscriber is slow to avoid blocking the writer.
		}
	}
}

// Subscribers reports the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
