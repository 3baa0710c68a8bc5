package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestBashName(t *testing.T) {
	b := NewBash(0)
	if b.Name() != "bash" {
		t.Errorf("expected 'bash', got %q", b.Name())
	}
}

func TestBashExecuteSimple(t *testing.T) {
	b := NewBash(0)
	args, _ := json.Marshal(map[string]string{"command": "echo hello"})
	result, err := b.Execute(context.Background(), args)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(result.Output) != "hello" {
		t.Errorf("expected 'hello', got %q", result.Output)
	}
}

func TestBashExecuteStderr(t *testing.T) {
	b := NewBash(0)
	args, _ := json.Marshal(map[string]string{"command": "echo err >&2"})
	result, err := b.Execute(context.Background(), args)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result.Output, "err") {
		t.Errorf("expected stderr output, got %q", result.Output)
	}
}

func TestBashExecuteEnv(t *testing.T) {
	b := NewBash(0, "DISPLAY=:7")
	args, _ := json.Marshal(map[string]string{"command": "echo $DISPLAY"})
	result, err := b.Execute(context.Background(), args)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(result.Output) != ":7" {
		t.Errorf("expected ':7', got %q", result.Output)
	}
}

func TestBashExecuteTimeout(t *testing.T) {
	b := NewBash(0)
	args, _ := json.Marshal(map[string]any{"command": "sleep 10", "timeout_seconds": 1})
	start := time.Now()
	result, err := b.Execute(context.Background(), args)
	elapsed := time.Since(start)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if result.System == "" {
		t.Error("expected a system note on timeout")
	}
	if elapsed > 3*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}

func TestBashExecuteExitCode(t *testing.T) {
	b := NewBash(0)
	args, _ := json.Marshal(map[string]string{"command": "echo partial; exit 1"})
	result, err := b.Execute(context.Background(), args)
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !strings.Contains(result.Output, "partial") {
		t.Errorf("expected output kept, got %q", result.Output)
	}
}

func TestBashMissingCommand(t *testing.T) {
	b := NewBash(0)
	if _, err := b.Execute(context.Background(), json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for missing command")
	}
}

func TestBashParameters(t *testing.T) {
	b := NewBash(0)
	var schema map[string]any
	if err := json.Unmarshal(b.Parameters(), &schema); err != nil {
		t.Fatal(err)
	}
	if schema["type"] != "object" {
		t.Errorf("expected object schema, got %v", schema["type"])
	}
}

func TestBashRestart(t *testing.T) {
	b := NewBash(5 * time.Second)
	out, err := b.Execute(context.Background(), json.RawMessage(`{"restart":true}`))
	if err != nil {
		t.Fatal(err)
	}
	if out.System != "tool has been restarted." {
		t.Errorf("unexpected outcome %+v", out)
	}
	if def := b.Definition(); def.Type != "bash_20241022" || def.Name != "bash" {
		t.Errorf("unexpected definition %+v", def)
	}
}
