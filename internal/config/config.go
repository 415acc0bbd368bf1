// Package config loads runtime configuration from the process environment.
// All settings use the TEMPO_ prefix, e.g. TEMPO_MODEL, TEMPO_API_KEY.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "TEMPO_"

// Config is the resolved application configuration.
type Config struct {
	// APIKey authorizes calls to the model endpoint. Resolution order:
	// TEMPO_API_KEY, then GEMINI_API_KEY. An empty key is allowed at
	// construction; sends will fail instead.
	APIKey string `koanf:"api_key"`
	// Model is the model name, e.g. gemini-2.5-flash.
	Model string `koanf:"model"`
	// BaseURL overrides the model endpoint.
	BaseURL string `koanf:"base_url"`
	// Timeout bounds one model HTTP round trip.
	Timeout time.Duration `koanf:"timeout"`
	// DataDir holds the sqlite database and CLI history.
	DataDir string `koanf:"data_dir"`
	// MaxToolRounds caps tool-call round trips per turn.
	MaxToolRounds int `koanf:"max_tool_rounds"`
	// MaxRetries bounds transient-failure retries per non-streaming send.
	MaxRetries int `koanf:"max_retries"`
}

// Load reads TEMPO_* environment variables into a Config and applies
// defaults for everything unset.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.DataDir = filepath.Join(home, ".tempo")
		} else {
			cfg.DataDir = ".tempo"
		}
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 8
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
}

// DatabasePath is the sqlite file location inside DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "tempo.db")
}

// HistoryPath is the CLI readline history location inside DataDir.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history")
}
