package progress

import "sync"

// ChannelEmitter buffers events for a single consumer (the WebSocket or MCP
// bridge goroutine). When the buffer is full the oldest event is dropped in
// favor of the newest; progress is advisory and a slow consumer must not
// block the pipeline.
type ChannelEmitter struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewChannelEmitter creates an emitter with the given buffer capacity.
func NewChannelEmitter(capacity int) *ChannelEmitter {
	if capacity <= 0 {
		capacity = 64
	}
	return &ChannelEmitter{ch: make(chan Event, capacity)}
}

// Emit implements Emitter.
func (c *ChannelEmitter) Emit(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for {
		select {
		case c.ch <- e:
			return
		default:
			// Buffer full: drop the oldest event and retry.
			select {
			case <-c.ch:
			default:
			}
		}
	}
}

// Events returns the receive side of the buffer.
func (c *ChannelEmitter) Events() <-chan Event {
	return c.ch
}

// Close closes the channel. Emit becomes a no-op afterwards.
func (c *ChannelEmitter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
