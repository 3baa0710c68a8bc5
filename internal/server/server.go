// Package server exposes a session over HTTP: input, a read-only view of
// the log, the serialized context, transcripts, metrics, and the voice
// WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ctxengine "github.com/jerhadf/voice-computer-use/internal/context"
	"github.com/jerhadf/voice-computer-use/internal/gateway"
	"github.com/jerhadf/voice-computer-use/internal/state"
	"github.com/jerhadf/voice-computer-use/internal/types"
	"github.com/jerhadf/voice-computer-use/internal/voice"
)

// Sessions is what the server needs from the gateway.
type Sessions interface {
	HandleInbound(ctx context.Context, event *types.InboundEvent) error
	View(key types.SessionKey) (*gateway.View, bool)
}

// Config wires the server's optional parts. Nil fields disable the routes
// that need them.
type Config struct {
	DefaultKey  types.SessionKey
	Engine      *ctxengine.Engine
	Transcripts *state.TranscriptStore
	Index       *state.SessionIndexStore
	Gatherer    prometheus.Gatherer
	Voice       http.Handler
}

// Server is the HTTP surface of the engine.
type Server struct {
	sessions Sessions
	cfg      Config
	mux      *http.ServeMux
}

// New creates a Server backed by sessions.
func New(sessions Sessions, cfg Config) *Server {
	if cfg.DefaultKey == "" {
		cfg.DefaultKey = types.NewSessionKey("voice", "default")
	}
	s := &Server{
		sessions: sessions,
		cfg:      cfg,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/input", s.handleInput)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/context", s.handleContext)
	s.mux.HandleFunc("GET /api/sessions", s.handleSessions)
	s.mux.HandleFunc("GET /api/sessions/{id}/events", s.handleTranscript)
	if cfg.Gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if cfg.Voice != nil {
		s.mux.Handle(voice.Path, cfg.Voice)
	}
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

type inputRequest struct {
	Text       string `json:"text"`
	SessionKey string `json:"session_key"`
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, `{"error":"text is required"}`, http.StatusBadRequest)
		return
	}

	key := s.key(req.SessionKey)
	err := s.sessions.HandleInbound(r.Context(), &types.InboundEvent{Source: "http", SessionKey: key, Text: req.Text})
	if err != nil {
		slog.Error("submit input failed", "session_key", string(key), "error", err)
		if errors.Is(err, gateway.ErrInboxFull) {
			http.Error(w, `{"error":"session is busy"}`, http.StatusTooManyRequests)
			return
		}
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "accepted", "session_key": string(key)})
}

type eventsResponse struct {
	SessionID string        `json:"session_id"`
	State     gateway.State `json:"state"`
	Cursor    int           `json:"cursor"`
	Total     int           `json:"total"`
	Runs      int           `json:"runs"`
	Failures  int           `json:"failures"`
	Run       *gateway.Run  `json:"run,omitempty"`
	Events    []types.Event `json:"events"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	view, ok := s.view(w, r)
	if !ok {
		return
	}

	since := 0
	if q := r.URL.Query().Get("since"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			since = n
		}
	}
	events := []types.Event{}
	if since < len(view.Events) {
		events = view.Events[since:]
	}

	writeJSON(w, eventsResponse{
		SessionID: string(view.SessionID),
		State:     view.State,
		Cursor:    view.Cursor,
		Total:     len(view.Events),
		Runs:      view.Runs,
		Failures:  view.Failures,
		Run:       view.Run,
		Events:    events,
	})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Engine == nil {
		http.Error(w, `{"error":"context engine not configured"}`, http.StatusServiceUnavailable)
		return
	}
	view, ok := s.view(w, r)
	if !ok {
		return
	}
	req, err := s.cfg.Engine.BuildRequest(view.Events, nil)
	if err != nil {
		slog.Error("build context failed", "session_id", string(view.SessionID), "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"system":           req.System,
		"messages":         req.Messages,
		"estimated_tokens": s.cfg.Engine.EstimateTokens(req),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Index == nil {
		http.Error(w, `{"error":"transcripts not configured"}`, http.StatusServiceUnavailable)
		return
	}
	list, err := s.cfg.Index.List(r.Context())
	if err != nil {
		slog.Error("list sessions failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*state.SessionIndex{}
	}
	writeJSON(w, list)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Transcripts == nil {
		http.Error(w, `{"error":"transcripts not configured"}`, http.StatusServiceUnavailable)
		return
	}
	sessionID := types.SessionID(r.PathValue("id"))

	limit := 200
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := s.cfg.Transcripts.Tail(r.Context(), sessionID, limit)
	if err != nil {
		slog.Error("tail transcript failed", "session_id", string(sessionID), "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []types.Event{}
	}
	writeJSON(w, events)
}

func (s *Server) key(raw string) types.SessionKey {
	if raw = strings.TrimSpace(raw); raw != "" {
		return types.SessionKey(raw)
	}
	return s.cfg.DefaultKey
}

func (s *Server) view(w http.ResponseWriter, r *http.Request) (*gateway.View, bool) {
	view, ok := s.sessions.View(s.key(r.URL.Query().Get("session_key")))
	if !ok {
		http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
		return nil, false
	}
	return view, true
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}
