// Package config loads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full process configuration.
type Config struct {
	Addr      string `env:"PARLEY_ADDR" envDefault:":8080"`
	LogLevel  string `env:"PARLEY_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"PARLEY_LOG_FORMAT" envDefault:"text"`

	// StoreBackend selects the persistence layer: "memory" or "badger".
	StoreBackend string `env:"PARLEY_STORE" envDefault:"memory"`
	BadgerPath   string `env:"PARLEY_BADGER_PATH" envDefault:"./data/parley"`

	AnthropicAPIKey string  `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string  `env:"PARLEY_ANTHROPIC_MODEL"`
	OpenAIAPIKey    string  `env:"OPENAI_API_KEY"`
	OpenAIModel     string  `env:"PARLEY_OPENAI_MODEL"`
	Temperature     float64 `env:"PARLEY_TEMPERATURE" envDefault:"0.7"`
	MaxTokens       int     `env:"PARLEY_MAX_TOKENS" envDefault:"4096"`

	SpeakTimeout    time.Duration `env:"PARLEY_SPEAK_TIMEOUT" envDefault:"5m"`
	PrepareTimeout  time.Duration `env:"PARLEY_PREPARE_TIMEOUT" envDefault:"2m"`
	TurnDelay       time.Duration `env:"PARLEY_TURN_DELAY" envDefault:"1s"`
	MaxTurnFailures int           `env:"PARLEY_MAX_TURN_FAILURES" envDefault:"3"`
	ContextMaxChars int           `env:"PARLEY_CONTEXT_MAX_CHARS" envDefault:"50000"`

	// HistoryRoot overrides the directory served by the transcript browsing
	// API; empty keeps the server default (~/.claude/projects).
	HistoryRoot string `env:"PARLEY_HISTORY_ROOT"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; a missing file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.StoreBackend != "memory" && cfg.StoreBackend != "badger" {
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	return cfg, nil
}
