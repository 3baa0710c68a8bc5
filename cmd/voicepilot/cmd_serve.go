package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jerhadf/voice-computer-use/internal/gateway"
	"github.com/jerhadf/voice-computer-use/internal/server"
	"github.com/jerhadf/voice-computer-use/internal/types"
	"github.com/jerhadf/voice-computer-use/internal/voice"
)

const (
	pidFileName       = "voicepilot.pid"
	voiceConnectGrace = 30 * time.Second
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the voicepilot daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, pidFileName)
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg, os.Stderr)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	voiceKey := types.NewSessionKey("voice", "default")
	gw := gateway.New(a.executor, func(id types.SessionID, key types.SessionKey) *gateway.Session {
		// Only one session can own the voice connection.
		return a.newSession(id, key, key == voiceKey)
	}, cfg.PollInterval())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	gw.Start(ctx)
	defer gw.Stop()

	if a.voice != nil {
		if _, err := gw.Session(voiceKey); err != nil {
			return fmt.Errorf("create voice session: %w", err)
		}
	}

	slog.Info("voicepilot started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"voice", a.voice != nil,
		"pid_file", pidPath,
	)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Enabled {
		httpServer := &http.Server{
			Addr: cfg.HTTP.Listen,
			Handler: server.New(gw, server.Config{
				DefaultKey:  voiceKey,
				Engine:      a.engine,
				Transcripts: a.transcripts,
				Index:       a.index,
				Gatherer:    a.registry,
				Voice:       voiceHandler(a),
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("http server started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return httpServer.Shutdown(shutdownCtx)
		})
	} else {
		slog.Warn("http server disabled; input only arrives by voice")
	}

	if a.bridge != nil && cfg.HTTP.Enabled {
		g.Go(func() error {
			if err := a.bridge.WaitForConnected(gctx, voiceConnectGrace); err != nil && gctx.Err() == nil {
				slog.Warn("no voice widget connected yet", "path", "ws://"+cfg.HTTP.Listen+voice.Path)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer cancel()
		return waitForSignal(gctx, cfg.DataDir, pidPath)
	})

	return g.Wait()
}

// waitForSignal blocks until SIGINT, SIGTERM or ctx is done. SIGHUP
// re-executes the binary in place.
func waitForSignal(ctx context.Context, dataDir, pidPath string) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				slog.Info("received SIGHUP, restarting")
				execPath, err := os.Executable()
				if err != nil {
					slog.Error("failed to get executable path", "error", err)
					continue
				}
				os.Remove(pidPath)
				if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
					slog.Error("failed to re-exec", "error", err)
					if _, writeErr := writePIDFile(dataDir); writeErr != nil {
						slog.Error("failed to re-write PID file", "error", writeErr)
					}
					continue
				}
			}
			slog.Info("shutting down", "signal", sig)
			return nil
		}
	}
}
