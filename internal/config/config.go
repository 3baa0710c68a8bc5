package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	DataDir            string `json:"data_dir"`
	LogLevel           string `json:"log_level"`
	MaxConcurrent      int    `json:"max_concurrent"`
	PollIntervalMS     int    `json:"poll_interval_ms"`
	SystemPromptSuffix string `json:"system_prompt_suffix"`
	LLM                struct {
		Provider         string `json:"provider"`
		BaseURL          string `json:"base_url"`
		APIKey           string `json:"api_key"`
		Model            string `json:"model"`
		MaxTokens        int    `json:"max_tokens"`
		MaxContextTokens int    `json:"max_context_tokens"`
		Beta             string `json:"beta"`
	} `json:"llm"`
	Images struct {
		Keep  int `json:"keep"`
		Chunk int `json:"chunk"`
	} `json:"images"`
	Tools struct {
		BashTimeoutSeconds int    `json:"bash_timeout_seconds"`
		Display            string `json:"display"`
		ScreenshotDir      string `json:"screenshot_dir"`
		ScreenWidth        int    `json:"screen_width"`
		ScreenHeight       int    `json:"screen_height"`
	} `json:"tools"`
	HTTP struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"http"`
	Voice struct {
		Enabled bool `json:"enabled"`
	} `json:"voice"`
	Transcript struct {
		Enabled bool `json:"enabled"`
	} `json:"transcript"`
}

// DefaultPath returns ~/.voicepilot/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".voicepilot", "config.json")
}

func defaults() *Config {
	cfg := &Config{
		DataDir:        filepath.Join(os.Getenv("HOME"), ".voicepilot"),
		LogLevel:       "info",
		MaxConcurrent:  2,
		PollIntervalMS: 100,
	}
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.BaseURL = "https://api.anthropic.com/v1"
	cfg.LLM.Model = "claude-3-5-sonnet-20241022"
	cfg.LLM.MaxTokens = 4096
	cfg.LLM.MaxContextTokens = 200000
	cfg.LLM.Beta = "computer-use-2024-10-22"
	cfg.Images.Keep = 10
	cfg.Images.Chunk = 10
	cfg.Tools.BashTimeoutSeconds = 120
	cfg.Tools.Display = ":1"
	cfg.Tools.ScreenWidth = 1024
	cfg.Tools.ScreenHeight = 768
	cfg.HTTP.Enabled = true
	cfg.HTTP.Listen = "127.0.0.1:8765"
	cfg.Voice.Enabled = true
	cfg.Transcript.Enabled = true
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("ANTHROPIC_BASE_URL"); baseURL != "" {
		cfg.LLM.BaseURL = baseURL
	}
	if display := os.Getenv("DISPLAY"); display != "" {
		cfg.Tools.Display = display
	}

	return cfg, nil
}

// PollInterval is the owning loop's idle wait.
func (c *Config) PollInterval() time.Duration {
	if c.PollIntervalMS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// BashTimeout bounds one bash tool invocation.
func (c *Config) BashTimeout() time.Duration {
	if c.Tools.BashTimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.Tools.BashTimeoutSeconds) * time.Second
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to its nested JSON map form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns cfg as a flat dot-keyed map, optionally with secrets
// masked.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := make(map[string]any)
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// DefaultValue returns the built-in value of key in its JSON form.
func DefaultValue(key string) (any, bool) {
	m, err := ToMap(defaults())
	if err != nil {
		return nil, false
	}
	v, ok := Flatten(m)[key]
	return v, ok
}

// GetValue reads one dot-separated key from the file at path, creating the
// file with defaults if it does not exist. Keys missing from an older file
// report their default. Environment overrides are not applied.
func GetValue(path, key string) (any, error) {
	if _, ok := schema[key]; !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	if _, err := Load(path); err != nil {
		return nil, err
	}
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	if v, ok := Flatten(m)[key]; ok {
		return v, nil
	}
	v, _ := DefaultValue(key)
	return v, nil
}

// SetValue stores one dot-separated key in the file at path. The key must
// be known and raw must parse as the key's type and satisfy its bounds.
// The file must already exist.
func SetValue(path, key, raw string) error {
	value, err := parseValue(key, raw)
	if err != nil {
		return err
	}
	m, err := readRaw(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	flat := Flatten(m)
	flat[key] = value
	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}
