// Package notify fans progression events out to live subscribers.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/p-n-ai/pai-journeys/internal/journey"
)

const defaultBuffer = 16

// Hub delivers events to the subscribers of the event's user. It never
// blocks the emitter: a subscriber whose buffer is full misses the event.
type Hub struct {
	buffer int

	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	ch chan journey.Event
}

// NewHub creates a hub with the given per-subscriber buffer size.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		buffer: buffer,
		subs:   make(map[string]map[*subscriber]struct{}),
	}
}

// Subscribe registers a subscriber for userID. The returned cancel func
// unregisters it and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(userID string) (<-chan journey.Event, func()) {
	s := &subscriber{ch: make(chan journey.Event, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() { h.remove(userID, s) })
	}
}

func (h *Hub) remove(userID string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[userID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, userID)
	}
	close(s.ch)
}

// Emit implements journey.EventSink.
func (h *Hub) Emit(_ context.Context, event journey.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[event.UserID] {
		select {
		case s.ch <- event:
		default:
			slog.Warn("dropping event for slow subscriber",
				"type", event.Type,
				"user_id", event.UserID,
			)
		}
	}
	return nil
}

// Subscribers returns the number of live subscribers of userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Close disconnects every subscriber. Later subscriptions receive a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for userID, set := range h.subs {
		for s := range set {
			close(s.ch)
		}
		delete(h.subs, userID)
	}
}
