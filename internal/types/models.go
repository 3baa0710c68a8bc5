// internal/types/models.go
package types

import (
	"encoding/json"
	"time"
)

// EventKind tags the closed set of log entries.
type EventKind string

const (
	KindUserInput       EventKind = "user_input"
	KindAssistantOutput EventKind = "assistant_output"
	KindToolUse         EventKind = "tool_use"
	KindToolResult      EventKind = "tool_result"
	KindError           EventKind = "error"
)

// Event is one immutable entry in a session log. Exactly one of the
// kind-specific fields is meaningful, as selected by Kind.
type Event struct {
	Seq        int         `json:"seq"`
	Kind       EventKind   `json:"kind"`
	At         time.Time   `json:"at"`
	Text       string      `json:"text,omitempty"`
	ToolUse    *ToolUse    `json:"tool_use,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
	Detail     string      `json:"detail,omitempty"`
}

// ToolUse is an instruction the model issued.
type ToolUse struct {
	ID    ToolUseID       `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolOutcome is what a tool produced. Error non-empty marks a failed
// invocation; System is an out-of-band note rendered ahead of the text.
type ToolOutcome struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
	System string `json:"system,omitempty"`
	Image  []byte `json:"image,omitempty"`
}

func (o ToolOutcome) Failed() bool { return o.Error != "" }

// ErrorOutcome builds a failed outcome.
func ErrorOutcome(msg string) ToolOutcome {
	return ToolOutcome{Error: msg}
}

// ToolResult is the outcome of executing the ToolUse with ToolUseID.
type ToolResult struct {
	ToolUseID ToolUseID `json:"tool_use_id"`
	ToolOutcome
}

func NewUserInput(text string) Event {
	return Event{Kind: KindUserInput, At: time.Now(), Text: text}
}

func NewAssistantOutput(text string) Event {
	return Event{Kind: KindAssistantOutput, At: time.Now(), Text: text}
}

func NewToolUse(id ToolUseID, name string, input json.RawMessage) Event {
	return Event{Kind: KindToolUse, At: time.Now(), ToolUse: &ToolUse{ID: id, Name: name, Input: input}}
}

func NewToolResult(id ToolUseID, outcome ToolOutcome) Event {
	return Event{Kind: KindToolResult, At: time.Now(), ToolResult: &ToolResult{ToolUseID: id, ToolOutcome: outcome}}
}

func NewError(detail string) Event {
	return Event{Kind: KindError, At: time.Now(), Detail: detail}
}

// InboundEvent is external input addressed to a session by key.
type InboundEvent struct {
	Source     string     `json:"source"`
	SessionKey SessionKey `json:"session_key"`
	Text       string     `json:"text"`
}
