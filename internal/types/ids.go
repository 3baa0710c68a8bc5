// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type SessionKey string
type SessionID string
type RunID string
type ToolUseID string

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

// NewToolUseID returns an id in the backend's "toolu_" shape. Used when a
// backend response omits one.
func NewToolUseID() ToolUseID {
	return ToolUseID("toolu_" + strings.ReplaceAll(uuid.New().String(), "-", ""))
}

func NewSessionKey(parts ...string) SessionKey {
	return SessionKey(strings.Join(parts, ":"))
}
