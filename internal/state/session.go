// internal/state/session.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jerhadf/voice-computer-use/internal/types"
)

// SessionIndex describes one recorded session.
type SessionIndex struct {
	SessionID  types.SessionID  `json:"session_id"`
	SessionKey types.SessionKey `json:"session_key"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	Events     int              `json:"events"`
}

// SessionIndexStore keeps sessions/sessions.json, the list of sessions that
// have transcripts on disk.
type SessionIndexStore struct {
	root string
	mu   sync.RWMutex
}

// NewSessionIndexStore creates a SessionIndexStore rooted at the given directory.
func NewSessionIndexStore(root string) *SessionIndexStore {
	return &SessionIndexStore{root: root}
}

func (s *SessionIndexStore) indexPath() string {
	return filepath.Join(s.root, "sessions", "sessions.json")
}

func (s *SessionIndexStore) load() (map[types.SessionID]*SessionIndex, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[types.SessionID]*SessionIndex), nil
		}
		return nil, fmt.Errorf("read session index: %w", err)
	}

	var sessions []*SessionIndex
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("unmarshal session index: %w", err)
	}

	index := make(map[types.SessionID]*SessionIndex, len(sessions))
	for _, sess := range sessions {
		index[sess.SessionID] = sess
	}
	return index, nil
}

// save writes the index sorted by creation time, atomically.
func (s *SessionIndexStore) save(index map[types.SessionID]*SessionIndex) error {
	sessions := make([]*SessionIndex, 0, len(index))
	for _, sess := range index {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session index: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.indexPath()), 0o755); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}

	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := os.Rename(tmp, s.indexPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp index: %w", err)
	}
	return nil
}

// Touch records that the session now has events entries, creating the index
// entry if needed.
func (s *SessionIndexStore) Touch(_ context.Context, id types.SessionID, key types.SessionKey, events int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.load()
	if err != nil {
		return err
	}

	now := time.Now()
	sess, ok := index[id]
	if !ok {
		sess = &SessionIndex{SessionID: id, SessionKey: key, CreatedAt: now}
		index[id] = sess
	}
	sess.UpdatedAt = now
	sess.Events = events
	return s.save(index)
}

// Get returns the session with the given ID.
func (s *SessionIndexStore) Get(_ context.Context, id types.SessionID) (*SessionIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.load()
	if err != nil {
		return nil, err
	}
	sess, ok := index[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return sess, nil
}

// List returns all sessions, oldest first.
func (s *SessionIndexStore) List(_ context.Context) ([]*SessionIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.load()
	if err != nil {
		return nil, err
	}

	sessions := make([]*SessionIndex, 0, len(index))
	for _, sess := range index {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// Remove drops the session from the index.
func (s *SessionIndexStore) Remove(_ context.Context, id types.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := index[id]; !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	delete(index, id)
	return s.save(index)
}
