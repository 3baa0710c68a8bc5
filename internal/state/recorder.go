// internal/state/recorder.go
package state

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jerhadf/voice-computer-use/internal/types"
)

type record struct {
	sessionID  types.SessionID
	sessionKey types.SessionKey
	event      types.Event
}

// Recorder copies log entries into a TranscriptStore from its own goroutine
// so that the log's writer never waits on disk. Entries are dropped when the
// buffer is full.
type Recorder struct {
	transcripts *TranscriptStore
	index       *SessionIndexStore
	ch          chan record
	done        chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewRecorder starts a Recorder. index may be nil.
func NewRecorder(transcripts *TranscriptStore, index *SessionIndexStore, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	r := &Recorder{
		transcripts: transcripts,
		index:       index,
		ch:          make(chan record, bufferSize),
		done:        make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record queues an event for the session. It never blocks.
func (r *Recorder) Record(sessionID types.SessionID, key types.SessionKey, event types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- record{sessionID: sessionID, sessionKey: key, event: event}:
	default:
		r.dropped++
		slog.Warn("transcript buffer full, dropping event", "session_id", string(sessionID), "seq", event.Seq)
	}
}

// Hook returns a log observer bound to one session.
func (r *Recorder) Hook(sessionID types.SessionID, key types.SessionKey) func(types.Event) {
	return func(e types.Event) { r.Record(sessionID, key, e) }
}

// Dropped reports how many events were discarded.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close stops accepting events and waits for queued ones to be written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) loop() {
	defer close(r.done)
	ctx := context.Background()
	for rec := range r.ch {
		if err := r.transcripts.Append(ctx, rec.sessionID, rec.event); err != nil {
			slog.Error("write transcript", "session_id", string(rec.sessionID), "error", err)
			continue
		}
		if r.index != nil {
			if err := r.index.Touch(ctx, rec.sessionID, rec.sessionKey, rec.event.Seq+1); err != nil {
				slog.Error("update session index", "session_id", string(rec.sessionID), "error", err)
			}
		}
	}
}
