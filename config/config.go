// Package config loads runtime configuration from environment variables
// and an optional .env file.
package config

import (
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/lmforge/tgen/registry"
)

// Config holds all configuration for the runtime.
type Config struct {
	// Server
	Addr           string   `env:"TGEN_ADDR" envDefault:":11434"`
	AllowedOrigins []string `env:"TGEN_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	// Models
	BaseDir      string `env:"TGEN_HOME"`
	DefaultModel string `env:"TGEN_DEFAULT_MODEL" envDefault:"gpt2"`
	PullHost     string `env:"TGEN_PULL_HOST" envDefault:"https://huggingface.co"`

	// Logging
	LogLevel string `env:"TGEN_LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from a .env file (if present) and the
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = registry.DefaultBaseDir()
	}
	return cfg, nil
}
