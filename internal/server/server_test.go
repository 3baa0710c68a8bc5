package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	ctxengine "github.com/jerhadf/voice-computer-use/internal/context"
	"github.com/jerhadf/voice-computer-use/internal/gateway"
	"github.com/jerhadf/voice-computer-use/internal/metrics"
	"github.com/jerhadf/voice-computer-use/internal/state"
	"github.com/jerhadf/voice-computer-use/internal/types"
)

type mockSessions struct {
	last  *types.InboundEvent
	err   error
	views map[types.SessionKey]*gateway.View
}

func (m *mockSessions) HandleInbound(_ context.Context, event *types.InboundEvent) error {
	m.last = event
	return m.err
}

func (m *mockSessions) View(key types.SessionKey) (*gateway.View, bool) {
	v, ok := m.views[key]
	return v, ok
}

func defaultView() *gateway.View {
	return &gateway.View{
		SessionID:  "s1",
		SessionKey: "voice:default",
		State:      gateway.StateIdle,
		Cursor:     1,
		Events: []types.Event{
			types.NewUserInput("hi"),
			types.NewAssistantOutput("hello"),
		},
	}
}

func setupServer(t *testing.T, mock *mockSessions, cfg Config) *Server {
	t.Helper()
	if mock.views == nil {
		mock.views = map[types.SessionKey]*gateway.View{"voice:default": defaultView()}
	}
	return New(mock, cfg)
}

func TestHealthEndpoint(t *testing.T) {
	srv := setupServer(t, &mockSessions{}, Config{})
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

func TestInputForwardsToDefaultSession(t *testing.T) {
	mock := &mockSessions{}
	srv := setupServer(t, mock, Config{})

	req := httptest.NewRequest("POST", "/api/input", strings.NewReader(`{"text":"open firefox"}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if mock.last == nil || mock.last.Text != "open firefox" || mock.last.SessionKey != "voice:default" {
		t.Errorf("unexpected inbound %+v", mock.last)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}
}

func TestInputValidation(t *testing.T) {
	srv := setupServer(t, &mockSessions{}, Config{})
	for _, body := range []string{`not json`, `{"text":"  "}`} {
		req := httptest.NewRequest("POST", "/api/input", strings.NewReader(body))
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestInputBusy(t *testing.T) {
	srv := setupServer(t, &mockSessions{err: gateway.ErrInboxFull}, Config{})
	req := httptest.NewRequest("POST", "/api/input", strings.NewReader(`{"text":"hi"}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
}

func TestEventsSince(t *testing.T) {
	srv := setupServer(t, &mockSessions{}, Config{})
	req := httptest.NewRequest("GET", "/api/events?since=1", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp eventsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 || resp.Cursor != 1 || len(resp.Events) != 1 || resp.Events[0].Text != "hello" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestEventsUnknownSession(t *testing.T) {
	srv := setupServer(t, &mockSessions{}, Config{})
	req := httptest.NewRequest("GET", "/api/events?session_key=nope", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestContextEndpoint(t *testing.T) {
	engine, err := ctxengine.New(ctxengine.DefaultOptions(), nil)
	if err != nil {
		t.Fatal(err)
	}
	srv := setupServer(t, &mockSessions{}, Config{Engine: engine})
	req := httptest.NewRequest("GET", "/api/context", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		System   string `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Messages) != 2 || resp.Messages[0].Role != "user" || resp.Messages[1].Role != "assistant" {
		t.Errorf("unexpected messages %+v", resp.Messages)
	}
	if resp.System == "" {
		t.Error("expected system prompt")
	}
}

func TestContextWithoutEngine(t *testing.T) {
	srv := setupServer(t, &mockSessions{}, Config{})
	req := httptest.NewRequest("GET", "/api/context", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestTranscriptEndpoints(t *testing.T) {
	dir := t.TempDir()
	transcripts := state.NewTranscriptStore(dir)
	index := state.NewSessionIndexStore(dir)
	ctx := context.Background()
	if err := transcripts.Append(ctx, "s1", types.NewUserInput("hi")); err != nil {
		t.Fatal(err)
	}
	if err := index.Touch(ctx, "s1", "voice:default", 1); err != nil {
		t.Fatal(err)
	}
	srv := setupServer(t, &mockSessions{}, Config{Transcripts: transcripts, Index: index})

	req := httptest.NewRequest("GET", "/api/sessions", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	var list []state.SessionIndex
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].SessionID != "s1" {
		t.Errorf("unexpected sessions %+v", list)
	}

	req = httptest.NewRequest("GET", "/api/sessions/s1/events?limit=10", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	var events []types.Event
	if err := json.NewDecoder(w.Body).Decode(&events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Text != "hi" {
		t.Errorf("unexpected transcript %+v", events)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.MustNewMetrics(reg)
	m.RunStarted()
	srv := setupServer(t, &mockSessions{}, Config{Gatherer: reg})

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), "voicepilot_worker_runs_total 1") {
		t.Errorf("expected runs counter in metrics output, got:\n%s", w.Body.String())
	}
}
