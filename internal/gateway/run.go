package gateway

import (
	"time"

	"github.com/jerhadf/voice-computer-use/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusFinished RunStatus = "finished"
)

// Run records one worker run scheduled by a session.
type Run struct {
	ID        types.RunID     `json:"id"`
	SessionID types.SessionID `json:"session_id"`
	Start     int             `json:"start"`
	Pending   int             `json:"pending"`
	Status    RunStatus       `json:"status"`
	Failures  int             `json:"failures"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
}

// NewRun creates a Run in the Running state covering pending entries from
// start.
func NewRun(id types.RunID, sessionID types.SessionID, start, pending int) *Run {
	return &Run{
		ID:        id,
		SessionID: sessionID,
		Start:     start,
		Pending:   pending,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}
}

func (r *Run) finish() {
	now := time.Now()
	r.Status = RunStatusFinished
	r.EndedAt = &now
}
