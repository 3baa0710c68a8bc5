package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/jerhadf/voice-computer-use/internal/types"
	"github.com/jerhadf/voice-computer-use/pkg/llm"
)

const maxBashOutput = 16000

// Bash executes shell commands on the host.
type Bash struct {
	timeout time.Duration
	env     []string
}

// NewBash creates a Bash tool. timeout <= 0 uses 120s. env entries are
// appended to the process environment of each command.
func NewBash(timeout time.Duration, env ...string) *Bash {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Bash{timeout: timeout, env: env}
}

func (b *Bash) Name() string { return "bash" }
func (b *Bash) Description() string {
	return "Run a bash command on the host. GUI programs started here appear on the controlled display."
}
// Definition is the bash tool as the computer-use backend defines it.
func (b *Bash) Definition() llm.Tool {
	return llm.Tool{Type: "bash_20241022", Name: b.Name()}
}

func (b *Bash) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "The command to execute"},
			"timeout_seconds": {"type": "integer", "description": "Timeout in seconds"},
			"restart": {"type": "boolean", "description": "Restart the shell"}
		},
		"required": ["command"]
	}`)
}

func (b *Bash) Execute(ctx context.Context, args json.RawMessage) (types.ToolOutcome, error) {
	var params struct {
		Command        string `json:"command"`
		TimeoutSeconds int    `json:"timeout_seconds"`
		Restart        bool   `json:"restart"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return types.ToolOutcome{}, fmt.Errorf("parse args: %w", err)
	}
	// Every command runs in a fresh shell, so there is nothing to restart.
	if params.Restart {
		return types.ToolOutcome{System: "tool has been restarted."}, nil
	}
	if params.Command == "" {
		return types.ToolOutcome{}, errors.New("command is required")
	}

	timeout := b.timeout
	if params.TimeoutSeconds > 0 {
		timeout = time.Duration(params.TimeoutSeconds) * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", params.Command)
	cmd.WaitDelay = 500 * time.Millisecond
	if len(b.env) > 0 {
		cmd.Env = append(cmd.Environ(), b.env...)
	}
	output, err := cmd.CombinedOutput()
	out := truncate(string(output), maxBashOutput)
	if ctx.Err() == context.DeadlineExceeded {
		return types.ToolOutcome{Output: out, System: "command timed out"}, fmt.Errorf("timed out after %s", timeout)
	}
	if err != nil {
		return types.ToolOutcome{Output: out}, fmt.Errorf("command failed: %w\nOutput: %s", err, out)
	}
	return types.ToolOutcome{Output: out}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n[output truncated]"
}
