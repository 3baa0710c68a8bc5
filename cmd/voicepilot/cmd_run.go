package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jerhadf/voice-computer-use/internal/gateway"
	"github.com/jerhadf/voice-computer-use/internal/server"
	"github.com/jerhadf/voice-computer-use/internal/tui"
	"github.com/jerhadf/voice-computer-use/internal/types"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive terminal session",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

// tuiSessions lets the HTTP server feed the terminal session. Input is
// handed to the TUI loop, which owns the log.
type tuiSessions struct {
	session *gateway.Session
	inbox   chan string
}

func (t *tuiSessions) HandleInbound(ctx context.Context, event *types.InboundEvent) error {
	if event.SessionKey != t.session.Key() {
		return fmt.Errorf("unknown session %s", event.SessionKey)
	}
	select {
	case t.inbox <- event.Text:
		return nil
	default:
		return gateway.ErrInboxFull
	}
}

func (t *tuiSessions) View(key types.SessionKey) (*gateway.View, bool) {
	if key != t.session.Key() {
		return nil, false
	}
	return t.session.View(), true
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	logOut, err := logFile(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logOut.Close()
	setupLogging(cfg, logOut)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	a.executor.Start(ctx)
	defer a.executor.Stop()

	key := types.NewSessionKey("voice", "default")
	session := a.newSession(types.NewSessionID(), key, true)
	inbox := make(chan string, 64)

	if cfg.HTTP.Enabled {
		srv := &http.Server{
			Addr: cfg.HTTP.Listen,
			Handler: server.New(&tuiSessions{session: session, inbox: inbox}, server.Config{
				DefaultKey:  key,
				Engine:      a.engine,
				Transcripts: a.transcripts,
				Index:       a.index,
				Gatherer:    a.registry,
				Voice:       voiceHandler(a),
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("http server started", "listen", cfg.HTTP.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "error", err)
			}
		}()
		defer srv.Close()
	}

	slog.Info("voicepilot started",
		"session_id", string(session.ID()),
		"llm_model", cfg.LLM.Model,
		"max_concurrent", cfg.MaxConcurrent,
	)

	model := tui.New(session, cfg.PollInterval()).WithInbox(inbox)
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run tui: %w", err)
	}

	// Runs already scheduled are abandoned, not interrupted.
	if !a.executor.WaitIdle(time.Second) {
		slog.Warn("exiting with a run in flight")
	}
	return nil
}

// voiceHandler returns the bridge as an http.Handler, or nil when voice is
// disabled.
func voiceHandler(a *app) http.Handler {
	if a.bridge == nil {
		return nil
	}
	return a.bridge
}
