// Package config handles GSKY run configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/LBJ-Wade/GSKY/internal/cosmo"
	"github.com/LBJ-Wade/GSKY/internal/gskyerr"
)

// Config is the root configuration structure.
type Config struct {
	Cosmology cosmo.Params   `yaml:"cosmology"`
	HaloModel map[string]any `yaml:"halo_model"`
	Data      DataConfig     `yaml:"data"`
	Storage   StorageConfig  `yaml:"storage"`
	Server    ServerConfig   `yaml:"server"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// DataConfig locates the data set.
type DataConfig struct {
	Path string `yaml:"path"`
	// Ells are the multipoles of the cls command when no data set is given.
	Ells []float64 `yaml:"ells"`
}

// StorageConfig selects where evaluation runs are recorded. An empty DSN
// disables recording.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "pgx"
	DSN    string `yaml:"dsn"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port      int     `yaml:"port"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second per client
	Burst     int     `yaml:"burst"`

	// TrustProxy identifies clients by X-Forwarded-For. Only safe behind a
	// reverse proxy that overwrites the header.
	TrustProxy bool `yaml:"trust_proxy"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Cosmology: cosmo.DefaultParams(),
		HaloModel: map[string]any{},
		Data: DataConfig{
			Ells: []float64{30, 100, 300, 1000, 3000},
		},
		Storage: StorageConfig{Driver: "sqlite"},
		Server: ServerConfig{
			Port:      8080,
			RateLimit: 2,
			Burst:     5,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load loads configuration from a file and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, gskyerr.Config("failed to parse config").With("path", path).WithCause(err)
	}
	if cfg.Data.Path != "" && !filepath.IsAbs(cfg.Data.Path) {
		cfg.Data.Path = filepath.Join(filepath.Dir(path), cfg.Data.Path)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadOrDefault loads config from path, or returns the default if path is
// empty or missing.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides storage and server settings from GSKY_DB_DRIVER,
// GSKY_DB_DSN and GSKY_PORT.
func (c *Config) applyEnv() error {
	if v := os.Getenv("GSKY_DB_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("GSKY_DB_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("GSKY_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return gskyerr.Config("GSKY_PORT must be an integer").With("value", v)
		}
		c.Server.Port = p
	}
	return nil
}

// Validate checks settings that do not depend on the physics.
func (c *Config) Validate() error {
	if err := c.Cosmology.Validate(); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case "sqlite", "pgx":
	default:
		return gskyerr.Config("storage driver must be sqlite or pgx").With("driver", c.Storage.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return gskyerr.Config("server port out of range").With("port", c.Server.Port)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses the configured log level.
func (c *Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.Logging.Level))); err != nil {
		return slog.LevelInfo, gskyerr.Config("invalid log level").With("level", c.Logging.Level)
	}
	return l, nil
}

// Save saves configuration to a file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
