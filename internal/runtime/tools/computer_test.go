package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
)

// fakeDisplay records commands and writes a fake PNG when scrot is called.
type fakeDisplay struct {
	mu   sync.Mutex
	cmds []string
	fail string
}

func (f *fakeDisplay) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	line := name + " " + strings.Join(args, " ")
	f.cmds = append(f.cmds, line)
	if f.fail != "" && strings.Contains(line, f.fail) {
		return []byte("no display"), errors.New("exit status 1")
	}
	switch name {
	case "scrot":
		return nil, os.WriteFile(args[len(args)-1], []byte("\x89PNG"), 0o644)
	case "xdotool":
		if len(args) > 0 && args[0] == "getmouselocation" {
			return []byte("X=120\nY=45\nSCREEN=0\nWINDOW=123\n"), nil
		}
	}
	return nil, nil
}

func newFakeComputer(t *testing.T) (*Computer, *fakeDisplay) {
	f := &fakeDisplay{}
	return NewComputer(ComputerConfig{ScreenshotDir: t.TempDir(), Runner: f.run}), f
}

func runAction(t *testing.T, c *Computer, params map[string]any) (string, []byte, error) {
	t.Helper()
	args, _ := json.Marshal(params)
	out, err := c.Execute(context.Background(), args)
	return out.Output, out.Image, err
}

func TestComputerScreenshot(t *testing.T) {
	c, f := newFakeComputer(t)
	_, img, err := runAction(t, c, map[string]any{"action": "screenshot"})
	if err != nil {
		t.Fatal(err)
	}
	if string(img) != "\x89PNG" {
		t.Errorf("expected png bytes, got %q", img)
	}
	if len(f.cmds) != 1 || !strings.HasPrefix(f.cmds[0], "scrot --overwrite ") {
		t.Errorf("unexpected commands %v", f.cmds)
	}
}

func TestComputerMouseMoveTakesScreenshot(t *testing.T) {
	c, f := newFakeComputer(t)
	_, img, err := runAction(t, c, map[string]any{"action": "mouse_move", "coordinate": []int{10, 20}})
	if err != nil {
		t.Fatal(err)
	}
	if img == nil {
		t.Error("expected follow-up screenshot")
	}
	if f.cmds[0] != "xdotool mousemove --sync 10 20" {
		t.Errorf("unexpected command %q", f.cmds[0])
	}
}

func TestComputerDrag(t *testing.T) {
	c, f := newFakeComputer(t)
	if _, _, err := runAction(t, c, map[string]any{"action": "left_click_drag", "coordinate": []int{5, 6}}); err != nil {
		t.Fatal(err)
	}
	if f.cmds[0] != "xdotool mousedown 1 mousemove --sync 5 6 mouseup 1" {
		t.Errorf("unexpected command %q", f.cmds[0])
	}
}

func TestComputerTypeChunks(t *testing.T) {
	c, f := newFakeComputer(t)
	text := strings.Repeat("a", 120)
	if _, _, err := runAction(t, c, map[string]any{"action": "type", "text": text}); err != nil {
		t.Fatal(err)
	}
	typed := 0
	for _, cmd := range f.cmds {
		if strings.HasPrefix(cmd, "xdotool type") {
			typed++
		}
	}
	if typed != 3 {
		t.Errorf("expected 3 type chunks, got %d", typed)
	}
}

func TestComputerClicks(t *testing.T) {
	for action, want := range map[string]string{
		"left_click":   "xdotool click 1",
		"right_click":  "xdotool click 3",
		"middle_click": "xdotool click 2",
		"double_click": "xdotool click --repeat 2 --delay 500 1",
	} {
		c, f := newFakeComputer(t)
		if _, _, err := runAction(t, c, map[string]any{"action": action}); err != nil {
			t.Fatalf("%s: %v", action, err)
		}
		if f.cmds[0] != want {
			t.Errorf("%s: expected %q, got %q", action, want, f.cmds[0])
		}
	}
}

func TestComputerCursorPosition(t *testing.T) {
	c, _ := newFakeComputer(t)
	out, img, err := runAction(t, c, map[string]any{"action": "cursor_position"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "X=120,Y=45" {
		t.Errorf("unexpected position %q", out)
	}
	if img != nil {
		t.Error("cursor_position should not take a screenshot")
	}
}

func TestComputerValidation(t *testing.T) {
	c, _ := newFakeComputer(t)
	for _, params := range []map[string]any{
		{"action": "mouse_move"},
		{"action": "mouse_move", "coordinate": []int{-1, 4}},
		{"action": "key"},
		{"action": "key", "text": "a", "coordinate": []int{1, 1}},
		{"action": "left_click", "coordinate": []int{1, 1}},
		{"action": "zoom"},
	} {
		if _, _, err := runAction(t, c, params); err == nil {
			t.Errorf("expected validation error for %v", params)
		}
	}
}

func TestComputerScreenshotFailureIsNoted(t *testing.T) {
	c, f := newFakeComputer(t)
	f.fail = "scrot"
	args, _ := json.Marshal(map[string]any{"action": "key", "text": "Return"})
	out, err := c.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("expected key action to succeed, got %v", err)
	}
	if !strings.Contains(out.System, "screenshot failed") {
		t.Errorf("expected system note, got %+v", out)
	}
}

func TestComputerDefinition(t *testing.T) {
	c := NewComputer(ComputerConfig{Display: ":1", Width: 1280, Height: 800, Runner: (&fakeDisplay{}).run})
	def := c.Definition()
	if def.Type != "computer_20241022" || def.Name != "computer" {
		t.Errorf("unexpected definition %+v", def)
	}
	if def.DisplayWidthPx != 1280 || def.DisplayHeightPx != 800 {
		t.Errorf("unexpected geometry %dx%d", def.DisplayWidthPx, def.DisplayHeightPx)
	}
	if def.DisplayNumber == nil || *def.DisplayNumber != 1 {
		t.Errorf("expected display number 1, got %v", def.DisplayNumber)
	}

	data, err := json.Marshal(def)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "input_schema") {
		t.Errorf("defined tool must not carry a schema: %s", data)
	}
}

func TestDisplayNumber(t *testing.T) {
	cases := map[string]int{":0": 0, ":1": 1, "localhost:10.0": 10}
	for in, want := range cases {
		if n, ok := displayNumber(in); !ok || n != want {
			t.Errorf("%q: expected %d, got %d (%v)", in, want, n, ok)
		}
	}
	if _, ok := displayNumber(""); ok {
		t.Error("expected no display number for empty display")
	}
}
