package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	ctxengine "github.com/jerhadf/voice-computer-use/internal/context"
	"github.com/jerhadf/voice-computer-use/internal/metrics"
	"github.com/jerhadf/voice-computer-use/internal/types"
	"github.com/jerhadf/voice-computer-use/pkg/llm"
)

// RunRequest is the immutable input of one worker run. Pending is
// log[Start:] at scheduling time and History is the whole log at that time.
type RunRequest struct {
	ID        types.RunID
	SessionID types.SessionID
	Start     int
	Pending   []types.Event
	History   []types.Event
}

// Step statuses reported to metrics.
const (
	stepOK       = "ok"
	stepFailed   = "failed"
	stepSkipped  = "skipped"
	stepDeferred = "deferred"
)

var errHistoryTooShort = errors.New("history does not cover step position")

// Worker interprets pending log entries one at a time: user input and tool
// results become backend calls, tool uses become tool invocations.
type Worker struct {
	provider llm.Provider
	engine   *ctxengine.Engine
	registry *Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// WorkerOption configures optional behaviour on a Worker.
type WorkerOption func(*Worker)

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// WithLogger sets the logger used for step failures.
func WithLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = l }
}

// NewWorker creates a Worker with the given dependencies.
func NewWorker(provider llm.Provider, engine *ctxengine.Engine, registry *Registry, opts ...WorkerOption) *Worker {
	w := &Worker{
		provider: provider,
		engine:   engine,
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes every pending entry in order and ends with RunFinished. A
// failing step is reported as RunFailed and does not stop the run; nothing
// is retried.
func (w *Worker) Run(ctx context.Context, req RunRequest, sink Sink) {
	w.metrics.RunStarted()
	defer w.metrics.RunEnded()

	logger := w.logger.With("run_id", string(req.ID), "session_id", string(req.SessionID))
	logger.Debug("run started", "start", req.Start, "pending", len(req.Pending))

	for i, ev := range req.Pending {
		pos := req.Start + i
		began := time.Now()
		status, err := w.step(ctx, req, pos, ev, sink)
		if err != nil {
			status = stepFailed
			logger.Error("step failed", "step", pos, "kind", string(ev.Kind), "error", err)
			sink.Push(RunFailed{
				Run:      req.ID,
				Position: pos,
				Detail:   fmt.Sprintf("step %d (%s): %v", pos, ev.Kind, err),
			})
		}
		w.metrics.ObserveStep(string(ev.Kind), status, time.Since(began))
	}

	sink.Push(RunFinished{Run: req.ID, NewCursor: req.Start + len(req.Pending)})
	logger.Debug("run finished", "cursor", req.Start+len(req.Pending))
}

func (w *Worker) step(ctx context.Context, req RunRequest, pos int, ev types.Event, sink Sink) (status string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	switch ev.Kind {
	case types.KindUserInput:
		return stepOK, w.respond(ctx, req, pos, sink)

	case types.KindToolUse:
		if ev.ToolUse == nil {
			return "", errors.New("tool use entry has no payload")
		}
		result := w.registry.Invoke(ctx, ev.ToolUse.Name, ev.ToolUse.Input)
		sink.Push(ToolResultReady{Run: req.ID, ToolUseID: ev.ToolUse.ID, Result: result})
		return stepOK, nil

	case types.KindToolResult:
		if awaitingSiblings(req.History, pos) {
			return stepDeferred, nil
		}
		return stepOK, w.respond(ctx, req, pos, sink)

	case types.KindAssistantOutput, types.KindError:
		return stepSkipped, nil

	default:
		return "", fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

// respond calls the backend with the log up to and including pos.
func (w *Worker) respond(ctx context.Context, req RunRequest, pos int, sink Sink) error {
	if pos >= len(req.History) {
		return errHistoryTooShort
	}
	llmReq, err := w.engine.BuildRequest(req.History[:pos+1], w.registry.AsLLMTools())
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := w.provider.Complete(ctx, llmReq)
	if err != nil {
		return fmt.Errorf("LLM call: %w", err)
	}
	sink.Push(ModelResponseReady{Run: req.ID, Events: responseEvents(resp)})
	return nil
}

// responseEvents maps reply blocks to log entries in order. Empty text
// blocks are dropped.
func responseEvents(resp *llm.Response) []types.Event {
	var out []types.Event
	for _, block := range resp.Content {
		switch block.Type {
		case llm.BlockText:
			if block.Text != "" {
				out = append(out, types.NewAssistantOutput(block.Text))
			}
		case llm.BlockToolUse:
			id := types.ToolUseID(block.ID)
			if id == "" {
				id = types.NewToolUseID()
			}
			out = append(out, types.NewToolUse(id, block.Name, block.Input))
		}
	}
	return out
}

// awaitingSiblings reports whether a tool use issued before pos is still
// unresolved at pos but resolved later in history. The backend is then
// called once, at the last result of the batch.
func awaitingSiblings(history []types.Event, pos int) bool {
	if pos >= len(history) {
		return false
	}
	resolved := make(map[types.ToolUseID]bool)
	for _, e := range history[:pos+1] {
		if e.Kind == types.KindToolResult && e.ToolResult != nil {
			resolved[e.ToolResult.ToolUseID] = true
		}
	}
	later := make(map[types.ToolUseID]bool)
	for _, e := range history[pos+1:] {
		if e.Kind == types.KindToolResult && e.ToolResult != nil {
			later[e.ToolResult.ToolUseID] = true
		}
	}
	for _, e := range history[:pos] {
		if e.Kind == types.KindToolUse && e.ToolUse != nil && !resolved[e.ToolUse.ID] && later[e.ToolUse.ID] {
			return true
		}
	}
	return false
}
