// Package config loads ledger settings from .ledger.yaml and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working directory.
const FileName = ".ledger.yaml"

// Config holds process-wide settings.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// MetricsAddr is the listen address for the Prometheus endpoint.
	// Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// Currency is the symbol shown in front of amounts in tables.
	Currency string `yaml:"currency"`

	// Store selects the storage backend: memory or sqlite.
	Store string `yaml:"store"`

	// SQLiteDSN is the database opened when Store is sqlite. The default is
	// an in-memory database that lives as long as the process.
	SQLiteDSN string `yaml:"sqlite_dsn"`
}

// Storage backends accepted by Config.Store.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		LogLevel:  "warn",
		Currency:  "$",
		Store:     StoreMemory,
		SQLiteDSN: "file::memory:",
	}
}

// Validate rejects unknown log levels and storage backends.
func (c Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	switch c.Store {
	case "", StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	return nil
}

// Load reads FileName from dir, fills unset fields from Default and applies
// environment overrides. A missing file is not an error.
func Load(dir string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	switch {
	case err == nil:
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", FileName, err)
		}
		if err := fileCfg.Validate(); err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", FileName, err)
		}
		cfg = merge(cfg, fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("reading %s: %w", FileName, err)
	}

	cfg.LogLevel = getEnv("LEDGER_LOG_LEVEL", getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.MetricsAddr = getEnv("LEDGER_METRICS_ADDR", cfg.MetricsAddr)
	cfg.Store = getEnv("LEDGER_STORE", cfg.Store)
	cfg.SQLiteDSN = getEnv("LEDGER_SQLITE_DSN", cfg.SQLiteDSN)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// merge overlays non-zero values from override on top of base.
func merge(base, override Config) Config {
	if override.LogLevel != "" {
		base.LogLevel = override.LogLevel
	}
	if override.MetricsAddr != "" {
		base.MetricsAddr = override.MetricsAddr
	}
	if override.Currency != "" {
		base.Currency = override.Currency
	}
	if override.Store != "" {
		base.Store = override.Store
	}
	if override.SQLiteDSN != "" {
		base.SQLiteDSN = override.SQLiteDSN
	}
	return base
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
