// Package config reads the trainscope server configuration from the
// environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Dashboard modes.
const (
	ModeExplore = "explore"
	ModeReplay  = "replay"
	ModeLive    = "live"
)

// Select modes.
const (
	SelectToggle = "toggle"
	SelectRecord = "record"
)

// Config holds every server setting.
type Config struct {
	Addr        string        `env:"TRAINSCOPE_ADDR"           envDefault:":5006"`
	Mode        string        `env:"TRAINSCOPE_MODE"           envDefault:"explore"`
	Trajectory  string        `env:"TRAINSCOPE_TRAJECTORY"`
	Interval    time.Duration `env:"TRAINSCOPE_TICK_INTERVAL"  envDefault:"100ms"`
	Threshold   float64       `env:"TRAINSCOPE_THRESHOLD"      envDefault:"0.5"`
	Simplify    float64       `env:"TRAINSCOPE_SIMPLIFY"       envDefault:"0"`
	SelectMode  string        `env:"TRAINSCOPE_SELECT_MODE"    envDefault:"toggle"`
	GridSize    int           `env:"TRAINSCOPE_GRID_SIZE"      envDefault:"100"`
	GridPadding float64       `env:"TRAINSCOPE_GRID_PADDING"   envDefault:"1"`
	Iterations  int           `env:"TRAINSCOPE_FIT_ITERATIONS" envDefault:"500"`
	BatchSize   int           `env:"TRAINSCOPE_BATCH_SIZE"     envDefault:"16"`
	DemoPoints  int           `env:"TRAINSCOPE_DEMO_POINTS"    envDefault:"200"`
	DemoSeed    uint64        `env:"TRAINSCOPE_DEMO_SEED"      envDefault:"1"`
	LogLevel    string        `env:"TRAINSCOPE_LOG_LEVEL"      envDefault:"info"`
	MetricsPath string        `env:"TRAINSCOPE_METRICS_PATH"   envDefault:"/metrics"`
}

// ParseEnv loads configuration from environment variables and validates it.
func ParseEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env cannot check by type.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeExplore, ModeLive:
	case ModeReplay:
		if c.Trajectory == "" {
			return fmt.Errorf("config: replay mode needs TRAINSCOPE_TRAJECTORY")
		}
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.SelectMode != SelectToggle && c.SelectMode != SelectRecord {
		return fmt.Errorf("config: unknown select mode %q", c.SelectMode)
	}
	if c.GridSize < 2 {
		return fmt.Errorf("config: grid size %d is below 2", c.GridSize)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("config: batch size %d is below 1", c.BatchSize)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("config: tick interval must be positive")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("config: %w", err)
	}
	return l, nil
}
