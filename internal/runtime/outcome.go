package runtime

import "github.com/jerhadf/voice-computer-use/internal/types"

// Outcome is one message a worker run sends back to the session that owns
// the log. The set is closed: ToolResultReady, ModelResponseReady,
// RunFailed and RunFinished.
type Outcome interface {
	RunID() types.RunID
	outcome()
}

// Sink receives outcomes. Push must not block.
type Sink interface {
	Push(Outcome)
}

// ToolResultReady carries the result of executing one ToolUse.
type ToolResultReady struct {
	Run       types.RunID
	ToolUseID types.ToolUseID
	Result    types.ToolOutcome
}

// ModelResponseReady carries the entries produced from one backend reply,
// in reply order.
type ModelResponseReady struct {
	Run    types.RunID
	Events []types.Event
}

// RunFailed reports a step that could not be completed. The run continues
// with the next step.
type RunFailed struct {
	Run      types.RunID
	Position int
	Detail   string
}

// RunFinished is always the last outcome of a run.
type RunFinished struct {
	Run       types.RunID
	NewCursor int
}

func (o ToolResultReady) RunID() types.RunID    { return o.Run }
func (o ModelResponseReady) RunID() types.RunID { return o.Run }
func (o RunFailed) RunID() types.RunID          { return o.Run }
func (o RunFinished) RunID() types.RunID        { return o.Run }

func (ToolResultReady) outcome()    {}
func (ModelResponseReady) outcome() {}
func (RunFailed) outcome()          {}
func (RunFinished) outcome()        {}
