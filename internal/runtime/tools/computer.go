package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jerhadf/voice-computer-use/internal/types"
	"github.com/jerhadf/voice-computer-use/pkg/llm"
)

const typingChunk = 50

// CommandRunner runs an external program and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ComputerConfig configures the Computer tool.
type ComputerConfig struct {
	Display       string        // X display, e.g. ":1"
	Width, Height int           // screen size advertised to the model
	ScreenshotDir string        // where screenshots are written before being read back
	SettleDelay   time.Duration // wait before the follow-up screenshot
	Runner        CommandRunner // defaults to os/exec
}

// Computer drives the X display with xdotool and captures it with scrot.
type Computer struct {
	cfg ComputerConfig
}

// NewComputer creates a Computer tool.
func NewComputer(cfg ComputerConfig) *Computer {
	if cfg.ScreenshotDir == "" {
		cfg.ScreenshotDir = filepath.Join(os.TempDir(), "voicepilot", "screenshots")
	}
	if cfg.Runner == nil {
		cfg.Runner = execRunner(cfg.Display)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 1024, 768
	}
	return &Computer{cfg: cfg}
}

// Definition is the computer-use tool as the backend defines it.
func (c *Computer) Definition() llm.Tool {
	def := llm.Tool{
		Type:            "computer_20241022",
		Name:            c.Name(),
		DisplayWidthPx:  c.cfg.Width,
		DisplayHeightPx: c.cfg.Height,
	}
	if n, ok := displayNumber(c.cfg.Display); ok {
		def.DisplayNumber = &n
	}
	return def
}

// displayNumber extracts N from an X display name like ":N" or "host:N.S".
func displayNumber(display string) (int, bool) {
	_, after, ok := strings.Cut(display, ":")
	if !ok {
		return 0, false
	}
	after, _, _ = strings.Cut(after, ".")
	n, err := strconv.Atoi(after)
	if err != nil {
		return 0, false
	}
	return n, true
}

func execRunner(display string) CommandRunner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, name, args...)
		if display != "" {
			cmd.Env = append(cmd.Environ(), "DISPLAY="+display)
		}
		return cmd.CombinedOutput()
	}
}

func (c *Computer) Name() string { return "computer" }
func (c *Computer) Description() string {
	return "Use a mouse and keyboard to interact with the computer, and take screenshots. Coordinates are screen pixels."
}
func (c *Computer) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["key", "type", "mouse_move", "left_click", "left_click_drag", "right_click", "middle_click", "double_click", "screenshot", "cursor_position"]},
			"text": {"type": "string", "description": "Key combination for key (xdotool syntax, e.g. ctrl+s) or text for type"},
			"coordinate": {"type": "array", "items": {"type": "integer"}, "description": "[x, y] for mouse_move and left_click_drag"}
		},
		"required": ["action"]
	}`)
}

type computerParams struct {
	Action     string `json:"action"`
	Text       string `json:"text"`
	Coordinate []int  `json:"coordinate"`
}

func (c *Computer) Execute(ctx context.Context, args json.RawMessage) (types.ToolOutcome, error) {
	var p computerParams
	if err := json.Unmarshal(args, &p); err != nil {
		return types.ToolOutcome{}, fmt.Errorf("parse args: %w", err)
	}

	switch p.Action {
	case "mouse_move", "left_click_drag":
		if p.Text != "" {
			return types.ToolOutcome{}, fmt.Errorf("text is not accepted for %s", p.Action)
		}
		x, y, err := point(p.Coordinate)
		if err != nil {
			return types.ToolOutcome{}, err
		}
		if p.Action == "mouse_move" {
			return c.act(ctx, "mousemove", "--sync", x, y)
		}
		return c.act(ctx, "mousedown", "1", "mousemove", "--sync", x, y, "mouseup", "1")

	case "key", "type":
		if p.Text == "" {
			return types.ToolOutcome{}, fmt.Errorf("text is required for %s", p.Action)
		}
		if len(p.Coordinate) > 0 {
			return types.ToolOutcome{}, fmt.Errorf("coordinate is not accepted for %s", p.Action)
		}
		if p.Action == "key" {
			return c.act(ctx, "key", "--", p.Text)
		}
		var out strings.Builder
		for _, chunk := range chunks(p.Text, typingChunk) {
			b, err := c.cfg.Runner(ctx, "xdotool", "type", "--delay", "12", "--", chunk)
			out.Write(b)
			if err != nil {
				return types.ToolOutcome{Output: out.String()}, fmt.Errorf("xdotool type: %w", err)
			}
		}
		return c.withScreenshot(ctx, out.String())

	case "left_click", "right_click", "middle_click", "double_click":
		if p.Text != "" || len(p.Coordinate) > 0 {
			return types.ToolOutcome{}, fmt.Errorf("text and coordinate are not accepted for %s", p.Action)
		}
		button := map[string][]string{
			"left_click":   {"click", "1"},
			"right_click":  {"click", "3"},
			"middle_click": {"click", "2"},
			"double_click": {"click", "--repeat", "2", "--delay", "500", "1"},
		}[p.Action]
		return c.act(ctx, button...)

	case "screenshot":
		img, err := c.screenshot(ctx)
		if err != nil {
			return types.ToolOutcome{}, err
		}
		return types.ToolOutcome{Image: img}, nil

	case "cursor_position":
		out, err := c.cfg.Runner(ctx, "xdotool", "getmouselocation", "--shell")
		if err != nil {
			return types.ToolOutcome{Output: string(out)}, fmt.Errorf("xdotool getmouselocation: %w", err)
		}
		x, y := parseMouseLocation(string(out))
		return types.ToolOutcome{Output: fmt.Sprintf("X=%s,Y=%s", x, y)}, nil
	}
	return types.ToolOutcome{}, fmt.Errorf("invalid action %q", p.Action)
}

// act runs one xdotool invocation and follows it with a screenshot.
func (c *Computer) act(ctx context.Context, args ...string) (types.ToolOutcome, error) {
	out, err := c.cfg.Runner(ctx, "xdotool", args...)
	if err != nil {
		return types.ToolOutcome{Output: string(out)}, fmt.Errorf("xdotool %s: %w", args[0], err)
	}
	return c.withScreenshot(ctx, string(out))
}

func (c *Computer) withScreenshot(ctx context.Context, output string) (types.ToolOutcome, error) {
	if c.cfg.SettleDelay > 0 {
		select {
		case <-time.After(c.cfg.SettleDelay):
		case <-ctx.Done():
			return types.ToolOutcome{Output: output}, ctx.Err()
		}
	}
	img, err := c.screenshot(ctx)
	if err != nil {
		return types.ToolOutcome{Output: output, System: "follow-up screenshot failed: " + err.Error()}, nil
	}
	return types.ToolOutcome{Output: output, Image: img}, nil
}

func (c *Computer) screenshot(ctx context.Context) ([]byte, error) {
	if err := os.MkdirAll(c.cfg.ScreenshotDir, 0o755); err != nil {
		return nil, fmt.Errorf("create screenshot dir: %w", err)
	}
	path := filepath.Join(c.cfg.ScreenshotDir, "screenshot_"+uuid.New().String()+".png")
	if out, err := c.cfg.Runner(ctx, "scrot", "--overwrite", path); err != nil {
		return nil, fmt.Errorf("scrot: %w: %s", err, strings.TrimSpace(string(out)))
	}
	defer os.Remove(path)

	img, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read screenshot: %w", err)
	}
	return img, nil
}

func point(coord []int) (string, string, error) {
	if len(coord) != 2 {
		return "", "", errors.New("coordinate must be a list of two integers")
	}
	if coord[0] < 0 || coord[1] < 0 {
		return "", "", fmt.Errorf("coordinate %v must be non-negative", coord)
	}
	return fmt.Sprint(coord[0]), fmt.Sprint(coord[1]), nil
}

func chunks(s string, size int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > size {
		out = append(out, string(runes[:size]))
		runes = runes[size:]
	}
	return append(out, string(runes))
}

func parseMouseLocation(out string) (x, y string) {
	for _, line := range strings.Split(out, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch k {
		case "X":
			x = v
		case "Y":
			y = v
		}
	}
	return x, y
}
