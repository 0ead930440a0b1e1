// Package config loads lectern settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds the settings needed to open a library.
type Config struct {
	Root          string `env:"LECTERN_ROOT" envDefault:"lectern-data"`
	Backend       string `env:"LECTERN_BACKEND" envDefault:"file"`
	SQLitePath    string `env:"LECTERN_SQLITE_PATH"`
	DefaultAuthor string `env:"LECTERN_DEFAULT_AUTHOR" envDefault:"system"`
	DefaultDevice string `env:"LECTERN_DEFAULT_DEVICE" envDefault:"unknown"`
	RepairOnRead  bool   `env:"LECTERN_REPAIR_ON_READ" envDefault:"true"`
	LogLevel      string `env:"LECTERN_LOG_LEVEL" envDefault:"info"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown backends and log levels.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendFile:
		if c.Root == "" {
			return fmt.Errorf("config: root is required for the %s backend", BackendFile)
		}
	case BackendSQLite:
		if c.Root == "" && c.SQLitePath == "" {
			return fmt.Errorf("config: root or sqlite path is required for the %s backend", BackendSQLite)
		}
	default:
		return fmt.Errorf("config: unknown backend %q (want %s or %s)", c.Backend, BackendFile, BackendSQLite)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: invalid log level %q", c.LogLevel)
	}
	return level, nil
}

// DatabasePath returns the SQLite file, defaulting to lectern.db under Root.
func (c Config) DatabasePath() string {
	if c.SQLitePath != "" {
		return c.SQLitePath
	}
	return filepath.Join(c.Root, "lectern.db")
}
