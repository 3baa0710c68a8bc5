package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kaptinlin/jsonrepair"

	"github.com/jerhadf/voice-computer-use/internal/metrics"
	"github.com/jerhadf/voice-computer-use/internal/types"
	"github.com/jerhadf/voice-computer-use/pkg/llm"
)

// Tool defines the interface for an executable tool. A returned error marks
// the invocation as failed; any output alongside it is kept.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (types.ToolOutcome, error)
}

// DefinedTool is a Tool whose input schema is defined by the backend. When
// the registry advertises defined tools, Definition replaces the custom
// description and schema.
type DefinedTool interface {
	Tool
	Definition() llm.Tool
}

// Registry holds registered tools and dispatches invocations to them. It is
// built once at startup and only read afterwards.
type Registry struct {
	tools   map[string]Tool
	metrics *metrics.Metrics
	defined bool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// SetMetrics attaches collectors for tool invocations.
func (r *Registry) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// UseDefinitions makes AsLLMTools advertise backend-defined tools by their
// Definition. It requires the matching beta header on every request.
func (r *Registry) UseDefinitions(on bool) {
	r.defined = on
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// AsLLMTools converts registered tools to the LLM provider format.
func (r *Registry) AsLLMTools() []llm.Tool {
	all := r.All()
	out := make([]llm.Tool, 0, len(all))
	for _, t := range all {
		if d, ok := t.(DefinedTool); ok && r.defined {
			out = append(out, d.Definition())
			continue
		}
		out = append(out, llm.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Parameters(),
		})
	}
	return out
}

// Invoke runs the named tool. Every failure, including an unknown name,
// unparseable input, or a panic inside the tool, comes back as an error
// outcome.
func (r *Registry) Invoke(ctx context.Context, name string, input json.RawMessage) (outcome types.ToolOutcome) {
	defer func() {
		r.metrics.ObserveTool(name, outcome.Failed())
	}()

	tool, ok := r.Get(name)
	if !ok {
		return types.ErrorOutcome(fmt.Sprintf("unknown tool: %s", name))
	}

	args, err := repairArgs(input)
	if err != nil {
		return types.ErrorOutcome(fmt.Sprintf("invalid input for %s: %v", name, err))
	}

	defer func() {
		if p := recover(); p != nil {
			slog.Error("tool panicked", "tool", name, "panic", p)
			outcome = types.ErrorOutcome(fmt.Sprintf("tool %s panicked: %v", name, p))
		}
	}()

	outcome, err = tool.Execute(ctx, args)
	if err != nil {
		outcome.Error = err.Error()
	}
	return outcome
}

// repairArgs returns the tool arguments as a JSON object. Object input is
// passed through. Input that arrives as a JSON string, as some
// Messages-compatible proxies send it, is unwrapped. Anything that is not
// valid JSON is repaired.
func repairArgs(input json.RawMessage) (json.RawMessage, error) {
	if len(input) == 0 {
		return json.RawMessage(`{}`), nil
	}
	raw := string(input)
	var encoded string
	if err := json.Unmarshal(input, &encoded); err == nil {
		raw = encoded
	} else if json.Valid(input) {
		return input, nil
	}
	if raw == "" {
		return json.RawMessage(`{}`), nil
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw), nil
	}
	fixed, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, fmt.Errorf("repair json: %w", err)
	}
	slog.Debug("repaired tool input", "before", raw, "after", fixed)
	return json.RawMessage(fixed), nil
}
