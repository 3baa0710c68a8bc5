package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jerhadf/voice-computer-use/internal/metrics"
	"github.com/jerhadf/voice-computer-use/internal/types"
)

const laneBuffer = 100

var (
	ErrExecutorStopped = errors.New("executor is stopped")
	ErrLaneFull        = errors.New("lane is full")
)

// Task is a unit of background work. It receives the executor's context.
type Task func(ctx context.Context)

// Executor runs tasks in per-session lanes with a global concurrency
// semaphore. Each session gets its own FIFO channel (lane) so that tasks
// within a session run sequentially, while the semaphore limits the total
// number of tasks executing across all sessions.
type Executor struct {
	lanes     map[types.SessionID]chan Task
	semaphore *semaphore.Weighted
	metrics   *metrics.Metrics
	active    atomic.Int64
	stopped   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewExecutor creates an Executor that allows up to maxConcurrent tasks to
// execute simultaneously across all lanes.
func NewExecutor(maxConcurrent int64, m *metrics.Metrics) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Executor{
		lanes:     make(map[types.SessionID]chan Task),
		semaphore: semaphore.NewWeighted(maxConcurrent),
		metrics:   m,
	}
}

// Start initialises the executor's context. Must be called before Schedule.
func (e *Executor) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctx, e.cancel = context.WithCancel(ctx)
}

// Stop cancels the executor context, closes all lanes, and waits for
// in-flight tasks to return. Tasks are not interrupted beyond context
// cancellation.
func (e *Executor) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	if e.cancel != nil {
		e.cancel()
	}
	for _, lane := range e.lanes {
		close(lane)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// Schedule adds task to the session's lane, creating the lane (and its
// goroutine) on first use. It never blocks.
func (e *Executor) Schedule(sessionID types.SessionID, task Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A cancelled context means lane goroutines are exiting and would never
	// read the task.
	if e.stopped || e.ctx == nil || e.ctx.Err() != nil {
		e.metrics.IncRejected()
		return ErrExecutorStopped
	}

	lane, exists := e.lanes[sessionID]
	if !exists {
		lane = make(chan Task, laneBuffer)
		e.lanes[sessionID] = lane
		e.wg.Add(1)
		go e.processLane(sessionID, lane)
	}

	select {
	case lane <- task:
		return nil
	default:
		e.metrics.IncRejected()
		return fmt.Errorf("session %s: %w", sessionID, ErrLaneFull)
	}
}

// processLane drains a single lane, acquiring a semaphore slot before
// running each task synchronously.
func (e *Executor) processLane(sessionID types.SessionID, lane chan Task) {
	defer e.wg.Done()
	for {
		select {
		case task, ok := <-lane:
			if !ok {
				return
			}
			if err := e.semaphore.Acquire(e.ctx, 1); err != nil {
				slog.Debug("task abandoned on shutdown", "session_id", string(sessionID))
				return
			}
			e.active.Add(1)
			e.run(sessionID, task)
			e.active.Add(-1)
			e.semaphore.Release(1)
		case <-e.ctx.Done():
			return
		}
	}
}

func (e *Executor) run(sessionID types.SessionID, task Task) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("task panicked", "session_id", string(sessionID), "panic", p)
		}
	}()
	task(e.ctx)
}

// Active returns the number of tasks currently executing.
func (e *Executor) Active() int64 {
	return e.active.Load()
}

// WaitIdle blocks until no tasks are executing, or the timeout expires.
// Returns true if idle, false if timed out.
func (e *Executor) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if e.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(20 * time.Millisecond):
		}
	}
}
