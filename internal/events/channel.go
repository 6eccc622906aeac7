package events

import (
	"sync"
	"sync/atomic"

	"lowvibe/internal/logging"
)

// Channel is a buffered sink for a single consumer. When the buffer is
// full new events are dropped and counted.
type Channel struct {
	mu      sync.RWMutex
	ch      chan Event
	closed  bool
	dropped atomic.Int64
}

// NewChannel returns a Channel with the given buffer size.
func NewChannel(buffer int) *Channel {
	if buffer < 1 {
		buffer = 1
	}
	return &Channel{ch: make(chan Event, buffer)}
}

// Emit implements Sink.
func (c *Channel) Emit(e Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- e:
	default:
		if n := c.dropped.Add(1); n == 1 || n%100 == 0 {
			logging.Warn("event buffer full, dropping events", "dropped", n, "type", e.Type)
		}
	}
}

// Events returns the receive side.
func (c *Channel) Events() <-chan Event { return c.ch }

// Dropped returns how many events were discarded.
func (c *Channel) Dropped() int64 { return c.dropped.Load() }

// Close stops accepting events and closes the channel once.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
