// Package config loads server configuration from defaults, an optional
// YAML file, and environment variables.
package config

import (
	"errors"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds everything the server needs at startup.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `koanf:"addr"`

	// DBPath is the SQLite database path. ":memory:" for ephemeral runs.
	DBPath string `koanf:"db_path"`

	// FeedPath optionally seeds the persisted feed from a normalized
	// results JSON file on startup.
	FeedPath string `koanf:"feed_path"`

	// KFactor and InitialRating tune the update function. Defaults match
	// the engine: 32 and 1500.
	KFactor       float64 `koanf:"k_factor"`
	InitialRating float64 `koanf:"initial_rating"`

	// MetricsEnabled exposes /metrics when true.
	MetricsEnabled bool `koanf:"metrics_enabled"`
}

// New returns the default configuration.
func New() *Config {
	return &Config{
		Addr:           ":8080",
		DBPath:         "crux.db",
		KFactor:        32,
		InitialRating:  1500,
		MetricsEnabled: true,
	}
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if CRUX_CONFIG is set
//  3. env (prefix CRUX_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("CRUX_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// Environment variables: CRUX_ADDR, CRUX_DB_PATH, ...
	// Underscores are preserved to match the koanf tags on the struct.
	envProvider := env.Provider("CRUX_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "crux_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	if cfg.Addr == "" {
		return nil, errors.New("addr must not be empty")
	}
	if cfg.KFactor <= 0 {
		return nil, errors.New("k_factor must be positive")
	}
	if cfg.InitialRating <= 0 {
		return nil, errors.New("initial_rating must be positive")
	}
	return &cfg, nil
}
