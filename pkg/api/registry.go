package api

import (
	"context"
	"sync"

	"github.com/restpilot/restpilot/pkg/progress"
)

// subscriberBuffer is the per-subscriber channel capacity. Slow readers
// lose events rather than stall the pipeline.
const subscriberBuffer = 64

// eventHub fans progress events out to WebSocket subscribers. Events are
// retained so a subscriber that connects after the request started (or
// finished) still sees the full stream.
type eventHub struct {
	mu     sync.Mutex
	events []progress.Event
	subs   map[chan progress.Event]struct{}
	closed bool
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[chan progress.Event]struct{})}
}

// Emit implements progress.Emitter.
func (h *eventHub) Emit(e progress.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.events = append(h.events, e)
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns the events emitted so far plus a channel for live ones.
// The channel closes when the hub closes. Callers must call the returned
// cancel func when done.
func (h *eventHub) Subscribe() ([]progress.Event, <-chan progress.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	replay := make([]progress.Event, len(h.events))
	copy(replay, h.events)

	ch := make(chan progress.Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return replay, ch, func() {}
	}
	h.subs[ch] = struct{}{}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
	return replay, ch, cancel
}

// Close marks the stream complete and closes all subscriber channels.
func (h *eventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
}

// requestEntry tracks one in-flight (or recently finished) request.
type requestEntry struct {
	cancel context.CancelFunc
	hub    *eventHub
	done   bool
}

// requestRegistry indexes active requests for the cancel and event-stream
// routes.
type requestRegistry struct {
	mu      sync.Mutex
	entries map[string]*requestEntry
}

func newRequestRegistry() *requestRegistry {
	return &requestRegistry{entries: make(map[string]*requestEntry)}
}

// Register adds a request. Returns false when the ID is already in flight.
func (r *requestRegistry) Register(id string, cancel context.CancelFunc, hub *eventHub) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return false
	}
	r.entries[id] = &requestEntry{cancel: cancel, hub: hub}
	return true
}

// Finish marks the request complete and closes its event stream. The entry
// stays resolvable so late event-stream subscribers get the replay; Remove
// drops it.
func (r *requestRegistry) Finish(id string) {
	r.mu.Lock()
	entry := r.entries[id]
	if entry != nil {
		entry.done = true
	}
	r.mu.Unlock()
	if entry != nil {
		entry.hub.Close()
	}
}

// Remove forgets the request entirely.
func (r *requestRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Cancel cancels an in-flight request. Returns false when the ID is unknown
// or the request already finished.
func (r *requestRegistry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok || entry.done {
		return false
	}
	entry.cancel()
	return true
}

// Hub returns the event hub for a request, or nil.
func (r *requestRegistry) Hub(id string) *eventHub {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[id]; ok {
		return entry.hub
	}
	return nil
}
