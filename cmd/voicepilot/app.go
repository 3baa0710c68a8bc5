package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jerhadf/voice-computer-use/internal/config"
	ctxengine "github.com/jerhadf/voice-computer-use/internal/context"
	"github.com/jerhadf/voice-computer-use/internal/gateway"
	"github.com/jerhadf/voice-computer-use/internal/metrics"
	"github.com/jerhadf/voice-computer-use/internal/runtime"
	"github.com/jerhadf/voice-computer-use/internal/runtime/tools"
	"github.com/jerhadf/voice-computer-use/internal/state"
	"github.com/jerhadf/voice-computer-use/internal/types"
	"github.com/jerhadf/voice-computer-use/internal/voice"
	"github.com/jerhadf/voice-computer-use/pkg/llm"
	"github.com/jerhadf/voice-computer-use/pkg/llm/anthropic"
)

// screenshotDelay lets the display settle before the follow-up screenshot.
const screenshotDelay = 2 * time.Second

// app holds the process-wide components shared by run and serve.
type app struct {
	cfg         *config.Config
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	engine      *ctxengine.Engine
	worker      *runtime.Worker
	executor    *gateway.Executor
	transcripts *state.TranscriptStore
	index       *state.SessionIndexStore
	recorder    *state.Recorder
	voice       *voice.Channel
	bridge      *voice.Bridge
}

func newApp(cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		slog.Warn("no API key configured; set ANTHROPIC_API_KEY or run voicepilot setup")
	}
	if cfg.LLM.Provider != "" && cfg.LLM.Provider != "anthropic" {
		return nil, fmt.Errorf("unsupported llm.provider %q", cfg.LLM.Provider)
	}

	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.MustNewMetrics(a.registry)

	provider := anthropic.New(&llm.Config{
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Beta:      cfg.LLM.Beta,
	})

	opts := ctxengine.DefaultOptions()
	opts.Model = cfg.LLM.Model
	opts.MaxTokens = cfg.LLM.MaxTokens
	opts.ContextWindow = cfg.LLM.MaxContextTokens
	opts.KeepImages = cfg.Images.Keep
	opts.ImageChunk = cfg.Images.Chunk
	opts.PromptSuffix = cfg.SystemPromptSuffix
	engine, err := ctxengine.New(opts, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("create context engine: %w", err)
	}
	a.engine = engine

	toolset := runtime.NewRegistry()
	toolset.SetMetrics(a.metrics)
	// The computer-use beta accepts the Anthropic-defined tool types.
	toolset.UseDefinitions(strings.HasPrefix(cfg.LLM.Beta, "computer-use"))
	toolset.Register(tools.NewComputer(tools.ComputerConfig{
		Display:       cfg.Tools.Display,
		ScreenshotDir: cfg.Tools.ScreenshotDir,
		SettleDelay:   screenshotDelay,
		Width:         cfg.Tools.ScreenWidth,
		Height:        cfg.Tools.ScreenHeight,
	}))
	toolset.Register(tools.NewBash(cfg.BashTimeout(), "DISPLAY="+cfg.Tools.Display))
	toolset.Register(tools.NewEdit())
	toolset.Register(tools.NewReadURL())

	a.worker = runtime.NewWorker(provider, engine, toolset, runtime.WithMetrics(a.metrics))
	a.executor = gateway.NewExecutor(int64(cfg.MaxConcurrent), a.metrics)

	if cfg.Transcript.Enabled {
		a.transcripts = state.NewTranscriptStore(cfg.DataDir)
		a.index = state.NewSessionIndexStore(cfg.DataDir)
		a.recorder = state.NewRecorder(a.transcripts, a.index, 0)
	}
	if cfg.Voice.Enabled {
		a.voice = voice.NewChannel()
		a.bridge = voice.NewBridge(a.voice, slog.Default())
	}
	return a, nil
}

// newSession builds a session wired to the shared worker and executor.
// withVoice attaches the voice channel when voice is enabled.
func (a *app) newSession(id types.SessionID, key types.SessionKey, withVoice bool) *gateway.Session {
	opts := []gateway.SessionOption{gateway.WithSessionLogger(slog.Default())}
	if withVoice && a.voice != nil {
		opts = append(opts, gateway.WithVoice(a.voice))
	}
	if a.recorder != nil {
		opts = append(opts, gateway.WithObserver(a.recorder.Hook(id, key)))
	}
	return gateway.NewSession(id, key, a.worker, a.executor, opts...)
}

func (a *app) close() {
	if a.bridge != nil {
		_ = a.bridge.Close()
	}
	if a.recorder != nil {
		a.recorder.Close()
		if n := a.recorder.Dropped(); n > 0 {
			slog.Warn("transcript entries dropped", "count", n)
		}
	}
}

func logFile(dataDir string) (*os.File, error) {
	return os.OpenFile(filepath.Join(dataDir, "voicepilot.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
