// internal/state/log.go
package state

import (
	"time"

	"github.com/jerhadf/voice-computer-use/internal/types"
)

// Log is the append-only, in-memory event log of one session. It has a
// single writer and performs no locking; readers on other goroutines must
// work from a Snapshot.
type Log struct {
	events    []types.Event
	observers []func(types.Event)
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{}
}

// Append stores the event, stamping its position and time, and returns its
// index. Observers run synchronously on the writer.
func (l *Log) Append(e types.Event) int {
	e.Seq = len(l.events)
	if e.At.IsZero() {
		e.At = time.Now()
	}
	l.events = append(l.events, e)
	for _, fn := range l.observers {
		fn(e)
	}
	return e.Seq
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.events)
}

// At returns the entry at index i.
func (l *Log) At(i int) (types.Event, bool) {
	if i < 0 || i >= len(l.events) {
		return types.Event{}, false
	}
	return l.events[i], true
}

// Slice returns a copy of entries [from, to). Bounds are clamped.
func (l *Log) Slice(from, to int) []types.Event {
	if from < 0 {
		from = 0
	}
	if to > len(l.events) {
		to = len(l.events)
	}
	if from >= to {
		return nil
	}
	out := make([]types.Event, to-from)
	copy(out, l.events[from:to])
	return out
}

// Snapshot returns a copy of every entry from index from onward.
func (l *Log) Snapshot(from int) []types.Event {
	return l.Slice(from, len(l.events))
}

// Observe registers fn to be called after each Append.
func (l *Log) Observe(fn func(types.Event)) {
	l.observers = append(l.observers, fn)
}
