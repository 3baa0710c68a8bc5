// internal/state/transcript.go
package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jerhadf/voice-computer-use/internal/types"
)

// TranscriptStore writes session logs as JSONL under
// sessions/<sessionID>/events.jsonl. It is an export: sessions are never
// rebuilt from it.
type TranscriptStore struct {
	root  string
	mu    sync.Mutex
	locks map[types.SessionID]*sync.Mutex
}

// NewTranscriptStore creates a TranscriptStore rooted at the given directory.
func NewTranscriptStore(root string) *TranscriptStore {
	return &TranscriptStore{
		root:  root,
		locks: make(map[types.SessionID]*sync.Mutex),
	}
}

func (s *TranscriptStore) getLock(sessionID types.SessionID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock, ok := s.locks[sessionID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.locks[sessionID] = lock
	return lock
}

func (s *TranscriptStore) path(sessionID types.SessionID) string {
	return filepath.Join(s.root, "sessions", string(sessionID), "events.jsonl")
}

// Append writes one event line. Large binary payloads are kept; a
// transcript is expected to be bounded by the session's own lifetime.
func (s *TranscriptStore) Append(_ context.Context, sessionID types.SessionID, event types.Event) error {
	lock := s.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path(sessionID)), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	f, err := os.OpenFile(s.path(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// Tail returns the last limit events of the transcript. limit <= 0 returns all.
func (s *TranscriptStore) Tail(_ context.Context, sessionID types.SessionID, limit int) ([]types.Event, error) {
	lock := s.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var events []types.Event
	scanner := bufio.NewScanner(f)
	// Screenshot results make for long lines.
	scanner.Buffer(make([]byte, 64*1024), 32*1024*1024)
	for scanner.Scan() {
		var event types.Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// Clear removes the session's transcript directory.
func (s *TranscriptStore) Clear(_ context.Context, sessionID types.SessionID) error {
	lock := s.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(filepath.Dir(s.path(sessionID))); err != nil {
		return fmt.Errorf("remove transcript: %w", err)
	}
	return nil
}
