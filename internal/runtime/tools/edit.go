package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jerhadf/voice-computer-use/internal/types"
	"github.com/jerhadf/voice-computer-use/pkg/llm"
)

const snippetLines = 4

// Edit views, creates and edits files by exact string replacement. Each
// successful write records the previous contents so it can be undone.
type Edit struct {
	mu      sync.Mutex
	history map[string][]string
}

// NewEdit creates a new Edit tool.
func NewEdit() *Edit {
	return &Edit{history: make(map[string][]string)}
}

func (e *Edit) Name() string { return "str_replace_editor" }
func (e *Edit) Description() string {
	return "View, create and edit files. Paths must be absolute. str_replace requires old_str to match exactly once."
}
// Definition is the editor tool as the computer-use backend defines it.
func (e *Edit) Definition() llm.Tool {
	return llm.Tool{Type: "text_editor_20241022", Name: e.Name()}
}

func (e *Edit) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "enum": ["view", "create", "str_replace", "insert", "undo_edit"]},
			"path": {"type": "string", "description": "Absolute path to a file or directory"},
			"file_text": {"type": "string", "description": "Content for create"},
			"old_str": {"type": "string", "description": "Text to replace for str_replace"},
			"new_str": {"type": "string", "description": "Replacement text for str_replace, or text to insert"},
			"insert_line": {"type": "integer", "description": "Line after which new_str is inserted"},
			"view_range": {"type": "array", "items": {"type": "integer"}, "description": "[start, end] lines for view; end -1 means end of file"}
		},
		"required": ["command", "path"]
	}`)
}

type editParams struct {
	Command    string `json:"command"`
	Path       string `json:"path"`
	FileText   string `json:"file_text"`
	OldStr     string `json:"old_str"`
	NewStr     string `json:"new_str"`
	InsertLine *int   `json:"insert_line"`
	ViewRange  []int  `json:"view_range"`
}

func (e *Edit) Execute(ctx context.Context, args json.RawMessage) (types.ToolOutcome, error) {
	var p editParams
	if err := json.Unmarshal(args, &p); err != nil {
		return types.ToolOutcome{}, fmt.Errorf("parse args: %w", err)
	}
	if !filepath.IsAbs(p.Path) {
		return types.ToolOutcome{}, fmt.Errorf("the path %q is not an absolute path", p.Path)
	}

	var (
		out string
		err error
	)
	switch p.Command {
	case "view":
		out, err = e.view(ctx, p.Path, p.ViewRange)
	case "create":
		out, err = e.create(p.Path, p.FileText)
	case "str_replace":
		out, err = e.replace(p.Path, p.OldStr, p.NewStr)
	case "insert":
		if p.InsertLine == nil {
			return types.ToolOutcome{}, errors.New("insert_line is required for insert")
		}
		out, err = e.insert(p.Path, *p.InsertLine, p.NewStr)
	case "undo_edit":
		out, err = e.undo(p.Path)
	default:
		return types.ToolOutcome{}, fmt.Errorf("unrecognized command %q", p.Command)
	}
	if err != nil {
		return types.ToolOutcome{}, err
	}
	return types.ToolOutcome{Output: out}, nil
}

func (e *Edit) view(ctx context.Context, path string, viewRange []int) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("the path %s does not exist", path)
	}
	if info.IsDir() {
		if len(viewRange) > 0 {
			return "", errors.New("view_range is not allowed when path points to a directory")
		}
		out, err := exec.CommandContext(ctx, "find", path, "-maxdepth", "2", "-not", "-path", "*/.*").CombinedOutput()
		if err != nil {
			return "", fmt.Errorf("list directory: %w", err)
		}
		return fmt.Sprintf("Here's the files and directories up to 2 levels deep in %s, excluding hidden items:\n%s", path, out), nil
	}

	content, err := readFile(path)
	if err != nil {
		return "", err
	}
	start := 1
	if len(viewRange) > 0 {
		if len(viewRange) != 2 {
			return "", errors.New("view_range must contain exactly two integers")
		}
		lines := strings.Split(content, "\n")
		first, last := viewRange[0], viewRange[1]
		if first < 1 || first > len(lines) {
			return "", fmt.Errorf("invalid view_range %v: first line must be within [1, %d]", viewRange, len(lines))
		}
		if last == -1 {
			last = len(lines)
		}
		if last < first || last > len(lines) {
			return "", fmt.Errorf("invalid view_range %v: last line must be within [%d, %d] or -1", viewRange, first, len(lines))
		}
		content = strings.Join(lines[first-1:last], "\n")
		start = first
	}
	return numbered(content, path, start), nil
}

func (e *Edit) create(path, text string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("file already exists at %s; create cannot overwrite files", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create parent dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	e.push(path, "")
	return fmt.Sprintf("File created successfully at: %s", path), nil
}

func (e *Edit) replace(path, oldStr, newStr string) (string, error) {
	if oldStr == "" {
		return "", errors.New("old_str is required for str_replace")
	}
	content, err := readFile(path)
	if err != nil {
		return "", err
	}
	switch n := strings.Count(content, oldStr); {
	case n == 0:
		return "", fmt.Errorf("no replacement was performed, old_str did not appear verbatim in %s", path)
	case n > 1:
		return "", fmt.Errorf("no replacement was performed, old_str appears %d times in %s; make it unique", n, path)
	}

	updated := strings.Replace(content, oldStr, newStr, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	e.push(path, content)

	// Show a few lines around the edit.
	line := strings.Count(content[:strings.Index(content, oldStr)], "\n")
	lines := strings.Split(updated, "\n")
	from := max(0, line-snippetLines)
	to := min(len(lines), line+snippetLines+strings.Count(newStr, "\n")+1)
	snippet := strings.Join(lines[from:to], "\n")
	return "The file " + path + " has been edited. " + numbered(snippet, "a snippet of "+path, from+1), nil
}

func (e *Edit) insert(path string, at int, text string) (string, error) {
	content, err := readFile(path)
	if err != nil {
		return "", err
	}
	lines := strings.Split(content, "\n")
	if at < 0 || at > len(lines) {
		return "", fmt.Errorf("invalid insert_line %d: must be within [0, %d]", at, len(lines))
	}

	inserted := strings.Split(text, "\n")
	out := make([]string, 0, len(lines)+len(inserted))
	out = append(out, lines[:at]...)
	out = append(out, inserted...)
	out = append(out, lines[at:]...)
	updated := strings.Join(out, "\n")

	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	e.push(path, content)

	from := max(0, at-snippetLines)
	to := min(len(out), at+len(inserted)+snippetLines)
	return "The file " + path + " has been edited. " + numbered(strings.Join(out[from:to], "\n"), "a snippet of the edited file", from+1), nil
}

func (e *Edit) undo(path string) (string, error) {
	e.mu.Lock()
	stack := e.history[path]
	if len(stack) == 0 {
		e.mu.Unlock()
		return "", fmt.Errorf("no edit history found for %s", path)
	}
	prev := stack[len(stack)-1]
	e.history[path] = stack[:len(stack)-1]
	e.mu.Unlock()

	if err := os.WriteFile(path, []byte(prev), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return "Last edit to " + path + " undone successfully. " + numbered(prev, path, 1), nil
}

func (e *Edit) push(path, prev string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history[path] = append(e.history[path], prev)
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("the path %s does not exist", path)
		}
		return "", fmt.Errorf("read file: %w", err)
	}
	return string(data), nil
}

// numbered renders content like `cat -n`, starting at line start.
func numbered(content, descriptor string, start int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here's the result of running `cat -n` on %s:\n", descriptor)
	for i, line := range strings.Split(content, "\n") {
		fmt.Fprintf(&b, "%6d\t%s\n", start+i, line)
	}
	return b.String()
}
