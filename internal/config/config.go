package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string `env:"REPLAY_HTTP_ADDR" envDefault:":8080"`
	MatchDir string `env:"REPLAY_MATCH_DIR" envDefault:"matches"`
	// UpstreamURL switches sessions to fetch from another replay server
	// instead of MatchDir.
	UpstreamURL     string        `env:"REPLAY_UPSTREAM_URL"`
	TickInterval    time.Duration `env:"REPLAY_TICK_INTERVAL" envDefault:"16ms"`
	FetchTimeout    time.Duration `env:"REPLAY_FETCH_TIMEOUT" envDefault:"10s"`
	ChunkDurationMs int64         `env:"REPLAY_CHUNK_DURATION_MS" envDefault:"300000"`

	LogLevel string `env:"REPLAY_LOG_LEVEL" envDefault:"info"`
	LogDev   bool   `env:"REPLAY_LOG_DEV"`
}

// Load reads an optional .env file, then the environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("REPLAY_TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("REPLAY_FETCH_TIMEOUT must not be negative, got %s", c.FetchTimeout)
	}
	if c.ChunkDurationMs <= 0 {
		return fmt.Errorf("REPLAY_CHUNK_DURATION_MS must be positive, got %d", c.ChunkDurationMs)
	}
	return nil
}
