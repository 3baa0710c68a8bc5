// internal/context/engine.go
package context

import (
	"bytes"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"text/template"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jerhadf/voice-computer-use/internal/types"
	"github.com/jerhadf/voice-computer-use/pkg/llm"
)

// Options configures an Engine.
type Options struct {
	Model         string
	MaxTokens     int // output tokens requested per call
	ContextWindow int // 0 disables the size warning
	KeepImages    int // < 0 keeps every image
	ImageChunk    int
	PromptSuffix  string
	Template      string // defaults to DefaultPrompt
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Model:         "claude-3-5-sonnet-20241022",
		MaxTokens:     4096,
		ContextWindow: 200000,
		KeepImages:    10,
		ImageChunk:    10,
	}
}

// PromptData is the data made available to the system prompt template.
type PromptData struct {
	Arch   string
	Date   string
	Tools  string
	Suffix string
}

// encoder is the part of *tiktoken.Tiktoken the engine uses.
type encoder interface {
	Encode(text string, allowedSpecial, disallowedSpecial []string) []int
}

// Engine turns a log prefix into a backend request.
type Engine struct {
	opts      Options
	prompt    *template.Template
	tokenizer encoder
	now       func() time.Time
	logger    *slog.Logger
}

// New creates an Engine and loads the tiktoken encoding for opts.Model.
// Claude models have no tiktoken encoding of their own; cl100k_base is
// used instead. When no encoding can be loaded the engine logs a warning
// and estimates with characters/4.
func New(opts Options, logger *slog.Logger) (*Engine, error) {
	text := opts.Template
	if text == "" {
		text = DefaultPrompt
	}
	tmpl, err := template.New("system").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse system prompt: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{opts: opts, prompt: tmpl, now: time.Now, logger: logger}
	if err := e.UseTokenizer(opts.Model); err != nil {
		logger.Warn("tokenizer unavailable, using heuristic estimates", "model", opts.Model, "error", err)
	}
	return e, nil
}

// UseTokenizer loads a tiktoken encoding for token estimates. Unknown
// models fall back to cl100k_base.
func (e *Engine) UseTokenizer(model string) error {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			return fmt.Errorf("get tokenizer: %w", err)
		}
	}
	e.tokenizer = enc
	return nil
}

func (e *Engine) countTokens(text string) int {
	if e.tokenizer != nil {
		return len(e.tokenizer.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// SystemPrompt renders the system prompt for the given tool names.
func (e *Engine) SystemPrompt(toolNames []string) (string, error) {
	var buf bytes.Buffer
	data := PromptData{
		Arch:   runtime.GOARCH,
		Date:   e.now().Format("Monday, January 2, 2006"),
		Tools:  strings.Join(toolNames, ", "),
		Suffix: e.opts.PromptSuffix,
	}
	if err := e.prompt.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return buf.String(), nil
}

// BuildRequest serializes history, prunes stale images and attaches the
// system prompt and tool schema.
func (e *Engine) BuildRequest(history []types.Event, tools []llm.Tool) (*llm.Request, error) {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	system, err := e.SystemPrompt(names)
	if err != nil {
		return nil, err
	}

	messages := Serialize(history)
	if removed := PruneImages(messages, e.opts.KeepImages, e.opts.ImageChunk); removed > 0 {
		e.logger.Debug("pruned images from context", "removed", removed)
	}

	req := &llm.Request{
		Model:     e.opts.Model,
		System:    system,
		Messages:  messages,
		Tools:     tools,
		MaxTokens: e.opts.MaxTokens,
	}

	if e.opts.ContextWindow > 0 {
		if est := e.EstimateTokens(req); est+e.opts.MaxTokens > e.opts.ContextWindow {
			e.logger.Warn("request may exceed context window", "estimated_tokens", est, "context_window", e.opts.ContextWindow)
		}
	}
	return req, nil
}

// imageTokens approximates a screenshot-sized image.
const imageTokens = 1600

// EstimateTokens approximates the prompt size of req.
func (e *Engine) EstimateTokens(req *llm.Request) int {
	total := e.countTokens(req.System)
	for _, t := range req.Tools {
		total += e.countTokens(t.Name) + e.countTokens(t.Description) + e.countTokens(string(t.InputSchema))
	}
	for _, m := range req.Messages {
		total += e.countBlocks(m.Content)
	}
	return total
}

func (e *Engine) countBlocks(blocks []llm.ContentBlock) int {
	total := 0
	for _, b := range blocks {
		switch b.Type {
		case llm.BlockText:
			total += e.countTokens(b.Text)
		case llm.BlockImage:
			total += imageTokens
		case llm.BlockToolUse:
			total += e.countTokens(b.Name) + e.countTokens(string(b.Input))
		case llm.BlockToolResult:
			total += e.countBlocks(b.Content)
		}
	}
	return total
}
