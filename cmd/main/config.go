package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/natefinch/atomic"

	"github.com/CTAG07/babbler/pkg/markov"
)

// envPrefix is prepended to every environment override, e.g. BABBLER_SERVER_ADDR.
const envPrefix = "BABBLER_"

// ServerConfig holds the configuration for the HTTP server and its storage.
type ServerConfig struct {
	Addr             string `toml:"addr" json:"addr" env:"ADDR"`
	LogLevel         string `toml:"log_level" json:"log_level" env:"LOG_LEVEL"`
	ModelPath        string `toml:"model_path" json:"model_path" env:"MODEL_PATH"`
	DatabasePath     string `toml:"database_path" json:"database_path" env:"DATABASE_PATH"`
	WatchModel       bool   `toml:"watch_model" json:"watch_model" env:"WATCH_MODEL"`
	ReloadDebounceMs int    `toml:"reload_debounce_ms" json:"reload_debounce_ms" env:"RELOAD_DEBOUNCE_MS"`
}

// ModelConfig holds the defaults used for training and generation.
type ModelConfig struct {
	Order       int  `toml:"order" json:"order" env:"ORDER"`
	WordLimit   int  `toml:"word_limit" json:"word_limit" env:"WORD_LIMIT"`
	IncludeSeed bool `toml:"include_seed" json:"include_seed" env:"INCLUDE_SEED"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server ServerConfig `toml:"server" json:"server" envPrefix:"SERVER_"`
	Model  ModelConfig  `toml:"model" json:"model" envPrefix:"MODEL_"`
}

// DefaultConfig creates a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:             ":7280",
			LogLevel:         "info",
			ModelPath:        "./data/babbler.model",
			DatabasePath:     "./data/babbler.db",
			WatchModel:       true,
			ReloadDebounceMs: 500,
		},
		Model: ModelConfig{
			Order:       markov.DefaultOrder,
			WordLimit:   markov.DefaultWordLimit,
			IncludeSeed: true,
		},
	}
}

// Validate reports the first invalid setting in c.
func (c *Config) Validate() error {
	if c.Model.Order < 1 {
		return fmt.Errorf("model.order must be at least 1, got %d", c.Model.Order)
	}
	if c.Model.WordLimit < 1 {
		return fmt.Errorf("model.word_limit must be at least 1, got %d", c.Model.WordLimit)
	}
	if c.Server.ReloadDebounceMs < 0 {
		return fmt.Errorf("server.reload_debounce_ms must not be negative, got %d", c.Server.ReloadDebounceMs)
	}
	if _, err := parseLogLevel(c.Server.LogLevel); err != nil {
		return err
	}
	return nil
}

// LoadConfig reads the configuration from a TOML file at the given path and
// applies environment overrides. If the file doesn't exist, it creates one
// with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err = writeConfig(path, config); err != nil {
			// The server can still run with defaults.
			fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if _, err = toml.Decode(string(file), config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err = env.ParseWithOptions(config, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func writeConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return atomic.WriteFile(path, &buf)
}

// ConfigManager handles thread-safe access to the configuration.
type ConfigManager struct {
	config     *Config
	mu         sync.RWMutex
	configPath string
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return &ConfigManager{config: cfg, configPath: path}, nil
}

// Get returns a copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return *cm.config
}

// Update validates the configuration, saves it to disk and makes it current.
// Server settings only take effect after a restart.
func (cm *ConfigManager) Update(newConfig Config) error {
	if err := newConfig.Validate(); err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if err := writeConfig(cm.configPath, &newConfig); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	*cm.config = newConfig
	return nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

func newLogger(level string) *slog.Logger {
	lvl, _ := parseLogLevel(level)
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
