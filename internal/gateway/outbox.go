package gateway

import (
	"sync"
	"time"

	"github.com/jerhadf/voice-computer-use/internal/runtime"
)

// Outbox is the FIFO result channel from a worker run to the session that
// owns the log. Push never blocks; the owner drains it with TryPop.
type Outbox struct {
	mu     sync.Mutex
	items  []runtime.Outcome
	notify chan struct{}
}

// NewOutbox creates an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{notify: make(chan struct{}, 1)}
}

func (o *Outbox) Push(out runtime.Outcome) {
	o.mu.Lock()
	o.items = append(o.items, out)
	o.mu.Unlock()
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// TryPop removes the oldest outcome, if any.
func (o *Outbox) TryPop() (runtime.Outcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.items) == 0 {
		return nil, false
	}
	out := o.items[0]
	o.items[0] = nil
	o.items = o.items[1:]
	return out, true
}

// Len returns the number of outcomes waiting.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// Wait blocks until an outcome is available or timeout elapses and reports
// whether one is available.
func (o *Outbox) Wait(timeout time.Duration) bool {
	if o.Len() > 0 {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-o.notify:
		return o.Len() > 0
	case <-timer.C:
		return o.Len() > 0
	}
}

// Ready is signalled after Push.
func (o *Outbox) Ready() <-chan struct{} {
	return o.notify
}
