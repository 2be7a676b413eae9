// Package config loads persist settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Returning modes.
const (
	ReturningAuto = "auto"
	ReturningOn   = "on"
	ReturningOff  = "off"
)

// Config holds settings shared by the persist commands.
type Config struct {
	// Database is the SQLite file path.
	Database string `env:"PERSIST_DB" envDefault:"persist.db"`

	// Driver is sqlite3 (cgo) or sqlite (pure Go).
	Driver string `env:"PERSIST_DRIVER" envDefault:"sqlite3"`

	LogLevel string `env:"PERSIST_LOG_LEVEL" envDefault:"info"`

	// Returning is auto, on or off. Auto probes the SQLite version.
	Returning string `env:"PERSIST_RETURNING" envDefault:"auto"`

	BusyTimeout time.Duration `env:"PERSIST_BUSY_TIMEOUT" envDefault:"5s"`

	// Migrations is a directory of *.sql scripts applied on open, in name
	// order. Empty disables migrations.
	Migrations string `env:"PERSIST_MIGRATIONS"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the environment.
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

// Validate checks enumerated settings.
func (c Config) Validate() error {
	switch c.Driver {
	case "sqlite3", "sqlite":
	default:
		return fmt.Errorf("PERSIST_DRIVER: unknown driver %q (want sqlite3 or sqlite)", c.Driver)
	}
	switch c.Returning {
	case ReturningAuto, ReturningOn, ReturningOff:
	default:
		return fmt.Errorf("PERSIST_RETURNING: unknown mode %q (want auto, on or off)", c.Returning)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("PERSIST_BUSY_TIMEOUT: must not be negative, got %s", c.BusyTimeout)
	}
	return nil
}

// Level returns LogLevel as a slog level.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("PERSIST_LOG_LEVEL: %w", err)
	}
	return l, nil
}

// ForcedReturning reports the RETURNING setting when it is not auto.
func (c Config) ForcedReturning() (enabled, forced bool) {
	switch c.Returning {
	case ReturningOn:
		return true, true
	case ReturningOff:
		return false, true
	default:
		return false, false
	}
}
