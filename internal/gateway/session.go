package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jerhadf/voice-computer-use/internal/runtime"
	"github.com/jerhadf/voice-computer-use/internal/state"
	"github.com/jerhadf/voice-computer-use/internal/types"
	"github.com/jerhadf/voice-computer-use/internal/voice"
)

// Scheduler accepts background tasks for a session. Schedule must not
// block.
type Scheduler interface {
	Schedule(sessionID types.SessionID, task Task) error
}

// Runner executes one worker run, pushing outcomes to sink.
type Runner interface {
	Run(ctx context.Context, req runtime.RunRequest, sink runtime.Sink)
}

// VoicePeer is the session's view of the voice channel.
type VoicePeer interface {
	EventsSince(cursor int) []voice.Event
	Send(cmd voice.Command)
}

// State is the session's run state. It cycles and is never terminal.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDraining State = "draining"
)

// View is an immutable projection of a session published for readers on
// other goroutines.
type View struct {
	SessionID   types.SessionID  `json:"session_id"`
	SessionKey  types.SessionKey `json:"session_key"`
	Events      []types.Event    `json:"events"`
	Cursor      int              `json:"cursor"`
	VoiceCursor int              `json:"voice_cursor"`
	State       State            `json:"state"`
	Runs        int              `json:"runs"`
	Failures    int              `json:"failures"`
	Run         *Run             `json:"run,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Session owns one event log and drives worker runs over it. Every method
// except View must be called from the owning goroutine.
type Session struct {
	id     types.SessionID
	key    types.SessionKey
	log    *state.Log
	outbox *Outbox

	worker    Runner
	scheduler Scheduler
	voice     VoicePeer
	logger    *slog.Logger

	cursor      int
	voiceCursor int
	state       State
	resolved    map[types.ToolUseID]bool
	run         *Run
	runs        int
	failures    int
	scheduleErr string

	view atomic.Pointer[View]
}

// SessionOption configures optional behaviour on a Session.
type SessionOption func(*Session)

// WithVoice attaches a voice peer.
func WithVoice(peer VoicePeer) SessionOption {
	return func(s *Session) { s.voice = peer }
}

// WithSessionLogger sets the session's logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver registers fn to see every appended event, e.g. a transcript
// recorder hook.
func WithObserver(fn func(types.Event)) SessionOption {
	return func(s *Session) { s.log.Observe(fn) }
}

// NewSession creates an idle session with an empty log.
func NewSession(id types.SessionID, key types.SessionKey, worker Runner, scheduler Scheduler, opts ...SessionOption) *Session {
	s := &Session{
		id:        id,
		key:       key,
		log:       state.NewLog(),
		outbox:    NewOutbox(),
		worker:    worker,
		scheduler: scheduler,
		logger:    slog.Default(),
		state:     StateIdle,
		resolved:  make(map[types.ToolUseID]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session_id", string(id))
	s.publish()
	return s
}

func (s *Session) ID() types.SessionID   { return s.id }
func (s *Session) Key() types.SessionKey { return s.key }
func (s *Session) State() State          { return s.state }
func (s *Session) Cursor() int           { return s.cursor }

// SubmitUserInput appends a UserInput entry. The next Tick schedules it.
func (s *Session) SubmitUserInput(text string) {
	s.append(types.NewUserInput(text))
	s.publish()
}

// Tick ingests voice events, applies waiting outcomes, and schedules a run
// when the session is idle with unprocessed entries. It never blocks and
// reports whether anything changed.
func (s *Session) Tick() bool {
	changed := s.ingestVoice()

	for {
		out, ok := s.outbox.TryPop()
		if !ok {
			break
		}
		s.apply(out)
		changed = true
	}

	if s.state == StateDraining {
		s.state = StateIdle
		changed = true
	}
	if s.state == StateIdle && s.cursor < s.log.Len() && s.schedule() {
		changed = true
	}

	if changed {
		s.publish()
	}
	return changed
}

// Wait blocks up to timeout for the next outcome while a run is active.
// It returns immediately when idle or when outcomes are already waiting.
func (s *Session) Wait(timeout time.Duration) bool {
	if s.state != StateRunning {
		return s.outbox.Len() > 0
	}
	return s.outbox.Wait(timeout)
}

// Ready is signalled when a worker pushes an outcome.
func (s *Session) Ready() <-chan struct{} {
	return s.outbox.Ready()
}

// View returns the last published projection. Safe from any goroutine.
func (s *Session) View() *View {
	return s.view.Load()
}

func (s *Session) schedule() bool {
	req := runtime.RunRequest{
		ID:        types.NewRunID(),
		SessionID: s.id,
		Start:     s.cursor,
		Pending:   s.log.Snapshot(s.cursor),
		History:   s.log.Snapshot(0),
	}
	err := s.scheduler.Schedule(s.id, func(ctx context.Context) {
		s.worker.Run(ctx, req, s.outbox)
	})
	if err != nil {
		if msg := err.Error(); msg != s.scheduleErr {
			s.logger.Error("schedule run", "error", err)
			s.scheduleErr = msg
		}
		return false
	}
	s.scheduleErr = ""
	s.state = StateRunning
	s.run = NewRun(req.ID, s.id, req.Start, len(req.Pending))
	s.runs++
	s.logger.Debug("run scheduled", "run_id", string(req.ID), "start", req.Start, "pending", len(req.Pending))
	return true
}

func (s *Session) apply(out runtime.Outcome) {
	if s.run != nil && out.RunID() != s.run.ID {
		s.logger.Warn("outcome from unexpected run", "run_id", string(out.RunID()), "current", string(s.run.ID))
	}

	switch o := out.(type) {
	case runtime.ToolResultReady:
		if s.resolved[o.ToolUseID] {
			s.logger.Warn("duplicate tool result dropped", "tool_use_id", string(o.ToolUseID))
			return
		}
		s.append(types.NewToolResult(o.ToolUseID, o.Result))

	case runtime.ModelResponseReady:
		for _, ev := range o.Events {
			s.append(ev)
			if ev.Kind == types.KindAssistantOutput && s.voice != nil {
				s.voice.Send(voice.SpeakCommand(ev.Text))
			}
		}

	case runtime.RunFailed:
		s.append(types.NewError(o.Detail))
		s.failures++
		if s.run != nil {
			s.run.Failures++
		}

	case runtime.RunFinished:
		next := min(o.NewCursor, s.log.Len())
		s.cursor = max(s.cursor, next)
		s.state = StateDraining
		if s.run != nil {
			s.run.finish()
		}
		s.logger.Debug("run finished", "run_id", string(o.Run), "cursor", s.cursor)

	default:
		s.logger.Error("unknown outcome", "type", fmt.Sprintf("%T", out))
	}
}

func (s *Session) append(ev types.Event) {
	s.log.Append(ev)
	if ev.Kind == types.KindToolResult && ev.ToolResult != nil {
		s.resolved[ev.ToolResult.ToolUseID] = true
	}
}

func (s *Session) ingestVoice() bool {
	if s.voice == nil {
		return false
	}
	events := s.voice.EventsSince(s.voiceCursor)
	s.voiceCursor += len(events)
	for _, ev := range events {
		switch ev.Type {
		case voice.EventOpened:
			s.voice.Send(voice.Command{Type: voice.CmdPauseAssistant})
		case voice.EventClosed:
			s.logger.Info("voice channel closed")
		case voice.EventError:
			s.logger.Warn("voice channel error", "error", ev.Error)
		case voice.EventMessage:
			if text, ok := ev.UserText(); ok {
				s.append(types.NewUserInput(text))
			}
		}
	}
	return len(events) > 0
}

func (s *Session) publish() {
	v := &View{
		SessionID:   s.id,
		SessionKey:  s.key,
		Events:      s.log.Snapshot(0),
		Cursor:      s.cursor,
		VoiceCursor: s.voiceCursor,
		State:       s.state,
		Runs:        s.runs,
		Failures:    s.failures,
		UpdatedAt:   time.Now(),
	}
	if s.run != nil {
		r := *s.run
		v.Run = &r
	}
	s.view.Store(v)
}
