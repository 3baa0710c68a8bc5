package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jerhadf/voice-computer-use/internal/gateway"
	"github.com/jerhadf/voice-computer-use/internal/runtime"
	"github.com/jerhadf/voice-computer-use/internal/types"
)

type inlineScheduler struct{ scheduled int }

func (s *inlineScheduler) Schedule(_ types.SessionID, task gateway.Task) error {
	s.scheduled++
	task(context.Background())
	return nil
}

type replyRunner struct{}

func (replyRunner) Run(_ context.Context, req runtime.RunRequest, sink runtime.Sink) {
	for _, ev := range req.Pending {
		if ev.Kind == types.KindUserInput {
			sink.Push(runtime.ModelResponseReady{Run: req.ID, Events: []types.Event{types.NewAssistantOutput("opening firefox")}})
		}
	}
	sink.Push(runtime.RunFinished{Run: req.ID, NewCursor: req.Start + len(req.Pending)})
}

func newTestModel() (Model, *gateway.Session, *inlineScheduler) {
	sched := &inlineScheduler{}
	s := gateway.NewSession("s1", "tui:test", replyRunner{}, sched)
	m := New(s, time.Millisecond)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model), s, sched
}

func TestModelSubmitAndTick(t *testing.T) {
	m, s, sched := newTestModel()

	m.input.SetValue("open firefox")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)

	if m.input.Value() != "" {
		t.Error("expected input to be cleared")
	}
	if sched.scheduled != 1 {
		t.Fatalf("expected one run scheduled, got %d", sched.scheduled)
	}

	next, cmd := m.Update(tickMsg(time.Now()))
	m = next.(Model)
	if cmd == nil {
		t.Error("expected the tick to re-arm")
	}

	next, _ = m.Update(tickMsg(time.Now()))
	m = next.(Model)

	v := s.View()
	if len(v.Events) != 2 || v.Cursor != 2 || v.State != gateway.StateIdle {
		t.Fatalf("unexpected session view %+v", v)
	}
	if sched.scheduled != 2 {
		t.Errorf("expected a follow-up run over the assistant output, got %d runs", sched.scheduled)
	}
	if out := m.View(); !strings.Contains(out, "opening firefox") {
		t.Errorf("expected assistant output on screen, got:\n%s", out)
	}
}

func TestModelIgnoresBlankInput(t *testing.T) {
	m, s, sched := newTestModel()
	m.input.SetValue("   ")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if sched.scheduled != 0 || len(s.View().Events) != 0 {
		t.Error("blank input should not reach the session")
	}
}

func TestModelQuit(t *testing.T) {
	m, _, _ := newTestModel()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestRenderEvent(t *testing.T) {
	cases := []struct {
		ev   types.Event
		want string
	}{
		{types.NewUserInput("hi"), "hi"},
		{types.NewToolUse("t1", "bash", []byte(`{"command":"ls"}`)), "bash"},
		{types.NewToolResult("t1", types.ToolOutcome{Output: "a.txt"}), "a.txt"},
		{types.NewToolResult("t1", types.ErrorOutcome("denied")), "error: denied"},
		{types.NewToolResult("t2", types.ToolOutcome{Image: []byte{1, 2, 3}}), "screenshot 3 bytes"},
		{types.NewError("step 2 failed"), "step 2 failed"},
	}
	for _, c := range cases {
		if got := RenderEvent(c.ev); !strings.Contains(got, c.want) {
			t.Errorf("%s: expected %q in %q", c.ev.Kind, c.want, got)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("line\nbreak", 20); got != "line break" {
		t.Errorf("unexpected %q", got)
	}
	if got := truncate("abcdef", 3); got != "abc…" {
		t.Errorf("unexpected %q", got)
	}
}

func TestModelDrainsInbox(t *testing.T) {
	m, s, sched := newTestModel()
	inbox := make(chan string, 2)
	inbox <- "from http"
	m = m.WithInbox(inbox)

	m.Update(tickMsg(time.Now()))
	v := s.View()
	if len(v.Events) == 0 || v.Events[0].Text != "from http" {
		t.Fatalf("expected inbox text in the log, got %+v", v.Events)
	}
	if sched.scheduled != 1 {
		t.Errorf("expected the inbox entry to be scheduled, got %d", sched.scheduled)
	}
}
