//go:build integration

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	ctxengine "github.com/jerhadf/voice-computer-use/internal/context"
	"github.com/jerhadf/voice-computer-use/internal/gateway"
	"github.com/jerhadf/voice-computer-use/internal/runtime"
	"github.com/jerhadf/voice-computer-use/internal/runtime/tools"
	"github.com/jerhadf/voice-computer-use/internal/server"
	"github.com/jerhadf/voice-computer-use/internal/state"
	"github.com/jerhadf/voice-computer-use/internal/types"
	"github.com/jerhadf/voice-computer-use/pkg/llm"
	"github.com/jerhadf/voice-computer-use/pkg/llm/anthropic"
)

// fakeAnthropic answers the Messages API based on the last block of the
// request: tool results get "done", "list" asks for bash, "fail" errors.
func fakeAnthropic(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req llm.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		last := req.Messages[len(req.Messages)-1]
		block := last.Content[len(last.Content)-1]

		var content []llm.ContentBlock
		switch {
		case block.Type == llm.BlockToolResult:
			content = []llm.ContentBlock{llm.TextBlock("done")}
		case strings.Contains(block.Text, "fail"):
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"overloaded"}}`))
			return
		case strings.Contains(block.Text, "list"):
			content = []llm.ContentBlock{{
				Type:  llm.BlockToolUse,
				ID:    "toolu_1",
				Name:  "bash",
				Input: json.RawMessage(`{"command":"echo a.txt"}`),
			}}
		default:
			content = []llm.ContentBlock{llm.TextBlock("hello")}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_1",
			"content":     content,
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": 5},
		})
	}))
}

type harness struct {
	gw    *gateway.Gateway
	http  *httptest.Server
	calls *atomic.Int32
	dir   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{calls: &atomic.Int32{}, dir: t.TempDir()}

	api := fakeAnthropic(t, h.calls)
	t.Cleanup(api.Close)

	engine, err := ctxengine.New(ctxengine.DefaultOptions(), nil)
	if err != nil {
		t.Fatal(err)
	}
	registry := runtime.NewRegistry()
	registry.Register(tools.NewBash(5 * time.Second))
	provider := anthropic.New(&llm.Config{BaseURL: api.URL, APIKey: "test", Model: "claude-test", MaxTokens: 256})
	worker := runtime.NewWorker(provider, engine, registry)

	transcripts := state.NewTranscriptStore(h.dir)
	index := state.NewSessionIndexStore(h.dir)
	recorder := state.NewRecorder(transcripts, index, 0)

	h.gw = gateway.New(gateway.NewExecutor(2, nil), func(id types.SessionID, key types.SessionKey) *gateway.Session {
		return gateway.NewSession(id, key, worker, h.gw.Executor, gateway.WithObserver(recorder.Hook(id, key)))
	}, 10*time.Millisecond)
	h.gw.Start(context.Background())

	h.http = httptest.NewServer(server.New(h.gw, server.Config{
		DefaultKey:  "voice:default",
		Engine:      engine,
		Transcripts: transcripts,
		Index:       index,
	}))
	t.Cleanup(func() {
		h.http.Close()
		h.gw.Stop()
		recorder.Close()
	})
	return h
}

func (h *harness) submit(t *testing.T, key, text string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"text": text, "session_key": key})
	resp, err := http.Post(h.http.URL+"/api/input", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
}

type eventsBody struct {
	State  string        `json:"state"`
	Cursor int           `json:"cursor"`
	Total  int           `json:"total"`
	Events []types.Event `json:"events"`
}

// settle polls /api/events until the session is idle with its whole log
// consumed.
func (h *harness) settle(t *testing.T, key string, want int) eventsBody {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var last eventsBody
	for time.Now().Before(deadline) {
		resp, err := http.Get(h.http.URL + "/api/events?session_key=" + key)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode == http.StatusOK {
			last = eventsBody{}
			if err := json.NewDecoder(resp.Body).Decode(&last); err != nil {
				resp.Body.Close()
				t.Fatal(err)
			}
		}
		resp.Body.Close()
		if last.Total >= want && last.State == string(gateway.StateIdle) && last.Cursor == last.Total {
			return last
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("session %s did not settle: %+v", key, last)
	return last
}

func kindsOf(events []types.Event) string {
	var out []string
	for _, e := range events {
		out = append(out, string(e.Kind))
	}
	return strings.Join(out, ",")
}

func TestEndToEndTextReply(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "test:text", "hi there")

	got := h.settle(t, "test:text", 2)
	if kindsOf(got.Events) != "user_input,assistant_output" {
		t.Fatalf("unexpected log %s", kindsOf(got.Events))
	}
	if got.Events[1].Text != "hello" {
		t.Errorf("expected hello, got %q", got.Events[1].Text)
	}
	if n := h.calls.Load(); n != 1 {
		t.Errorf("expected 1 backend call, got %d", n)
	}
}

func TestEndToEndToolRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "test:tool", "list the files")

	got := h.settle(t, "test:tool", 4)
	if kindsOf(got.Events) != "user_input,tool_use,tool_result,assistant_output" {
		t.Fatalf("unexpected log %s", kindsOf(got.Events))
	}
	result := got.Events[2].ToolResult
	if result == nil || result.ToolUseID != "toolu_1" || strings.TrimSpace(result.Output) != "a.txt" {
		t.Errorf("unexpected tool result %+v", result)
	}
	if got.Events[3].Text != "done" {
		t.Errorf("expected done, got %q", got.Events[3].Text)
	}
	if n := h.calls.Load(); n != 2 {
		t.Errorf("expected 2 backend calls, got %d", n)
	}
}

func TestEndToEndBackendFailureIsRecorded(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "test:fail", "please fail")

	got := h.settle(t, "test:fail", 2)
	if kindsOf(got.Events) != "user_input,error" {
		t.Fatalf("unexpected log %s", kindsOf(got.Events))
	}
	if !strings.Contains(got.Events[1].Detail, "step 0") || !strings.Contains(got.Events[1].Detail, "overloaded") {
		t.Errorf("unexpected detail %q", got.Events[1].Detail)
	}
	// Failures are recorded, never retried.
	time.Sleep(100 * time.Millisecond)
	if n := h.calls.Load(); n != 1 {
		t.Errorf("expected exactly 1 backend call, got %d", n)
	}
}

func TestEndToEndSessionsIsolated(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "test:a", "hi")
	h.submit(t, "test:b", "list")

	a := h.settle(t, "test:a", 2)
	b := h.settle(t, "test:b", 4)
	if a.Total != 2 || b.Total != 4 {
		t.Errorf("expected isolated logs, got %d and %d", a.Total, b.Total)
	}
	if len(h.gw.Sessions()) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(h.gw.Sessions()))
	}
}
