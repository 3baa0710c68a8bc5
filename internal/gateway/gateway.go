package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jerhadf/voice-computer-use/internal/types"
)

const inboxBuffer = 64

// ErrInboxFull is returned when a session cannot accept more input.
var ErrInboxFull = errors.New("session inbox is full")

// SessionFactory builds the session for a newly seen key.
type SessionFactory func(id types.SessionID, key types.SessionKey) *Session

type entry struct {
	session *Session
	inbox   chan string
}

// Gateway routes inbound events to sessions by key. Each session is driven
// by its own RunLoop goroutine; all sessions share one Executor.
type Gateway struct {
	Executor *Executor
	factory  SessionFactory
	poll     time.Duration

	mu       sync.RWMutex
	sessions map[types.SessionKey]*entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Gateway. poll bounds how long a session loop sleeps
// between voice checks.
func New(executor *Executor, factory SessionFactory, poll time.Duration) *Gateway {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	return &Gateway{
		Executor: executor,
		factory:  factory,
		poll:     poll,
		sessions: make(map[types.SessionKey]*entry),
	}
}

// Start initialises the gateway's context and starts the executor.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Executor.Start(g.ctx)
}

// Stop cancels every session loop, stops the executor, and waits.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.wg.Wait()
	g.Executor.Stop()
}

// Session resolves the session for key, creating it and starting its loop
// on first use.
func (g *Gateway) Session(key types.SessionKey) (*Session, error) {
	e, err := g.resolve(key)
	if err != nil {
		return nil, err
	}
	return e.session, nil
}

// Sessions returns every live session.
func (g *Gateway) Sessions() []*Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Session, 0, len(g.sessions))
	for _, e := range g.sessions {
		out = append(out, e.session)
	}
	return out
}

func (g *Gateway) resolve(key types.SessionKey) (*entry, error) {
	g.mu.RLock()
	e, ok := g.sessions[key]
	g.mu.RUnlock()
	if ok {
		return e, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.sessions[key]; ok {
		return e, nil
	}
	if g.ctx == nil || g.ctx.Err() != nil {
		return nil, ErrExecutorStopped
	}
	e = &entry{
		session: g.factory(types.NewSessionID(), key),
		inbox:   make(chan string, inboxBuffer),
	}
	g.sessions[key] = e
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := RunLoop(g.ctx, e.session, e.inbox, g.poll); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("session loop stopped", "session_id", string(e.session.ID()), "error", err)
		}
	}()
	slog.Info("session created", "session_id", string(e.session.ID()), "session_key", string(key))
	return e, nil
}

// HandleInbound resolves or creates the session for the event and hands
// the text to its owning loop. It never blocks.
func (g *Gateway) HandleInbound(ctx context.Context, event *types.InboundEvent) error {
	if event.Text == "" {
		return errors.New("empty input")
	}
	e, err := g.resolve(event.SessionKey)
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	select {
	case e.inbox <- event.Text:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrInboxFull
	}
}

// RunLoop is the headless owning loop of a session. It is the only
// goroutine that touches the session until ctx is cancelled. While a run is
// active it waits at most poll for the next outcome; when idle it sleeps
// until input, an outcome, or the next voice poll.
func RunLoop(ctx context.Context, s *Session, inbox <-chan string, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		s.Tick()
		if s.State() == StateRunning {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case text, ok := <-inbox:
				if !ok {
					inbox = nil
					continue
				}
				s.SubmitUserInput(text)
			default:
				s.Wait(poll)
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case text, ok := <-inbox:
			if !ok {
				inbox = nil
				continue
			}
			s.SubmitUserInput(text)
		case <-s.Ready():
		case <-ticker.C:
		}
	}
}

// View returns the published view of an existing session.
func (g *Gateway) View(key types.SessionKey) (*View, bool) {
	g.mu.RLock()
	e, ok := g.sessions[key]
	g.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.session.View(), true
}
