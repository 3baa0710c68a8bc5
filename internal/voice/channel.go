package voice

import "sync"

// Channel is the in-process meeting point between a voice transport and a
// session. Inbound events accumulate in an append-only list read by cursor;
// outbound commands queue until a transport takes them.
type Channel struct {
	mu      sync.Mutex
	events  []Event
	pending []Command
	ready   chan struct{}
}

// NewChannel creates an empty channel.
func NewChannel() *Channel {
	return &Channel{ready: make(chan struct{}, 1)}
}

// Deliver records an event reported by the peer.
func (c *Channel) Deliver(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

// Len returns the number of events delivered so far.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// EventsSince returns a copy of the events at and after cursor.
func (c *Channel) EventsSince(cursor int) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= len(c.events) {
		return nil
	}
	out := make([]Event, len(c.events)-cursor)
	copy(out, c.events[cursor:])
	return out
}

// Send queues a command for the peer. It never blocks.
func (c *Channel) Send(cmd Command) {
	c.mu.Lock()
	c.pending = append(c.pending, cmd)
	c.mu.Unlock()
	c.signal()
}

// TakeCommands removes and returns every queued command in order.
func (c *Channel) TakeCommands() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	return out
}

// Requeue puts commands back at the head of the queue, e.g. after a failed
// write.
func (c *Channel) Requeue(cmds []Command) {
	if len(cmds) == 0 {
		return
	}
	c.mu.Lock()
	c.pending = append(append([]Command(nil), cmds...), c.pending...)
	c.mu.Unlock()
	c.signal()
}

func (c *Channel) signal() {
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled after Send and Requeue.
func (c *Channel) Ready() <-chan struct{} {
	return c.ready
}
