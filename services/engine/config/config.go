// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the engine client's YAML configuration.
//
// The file lives at ~/.xqcoach/engine.yaml unless a path is given and is
// created with defaults on first use. Environment variables override a
// few fields after the file is read:
//
//	XQ_ENGINE_DIR    engine.dir
//	XQ_ENGINE_CACHE  cache.path
//
// The result is validated before it is returned.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/xqcoach/services/engine/evaluator"
	"github.com/AleutianAI/xqcoach/services/engine/scan"
	"github.com/AleutianAI/xqcoach/services/engine/supervisor"
)

// Environment overrides.
const (
	EnvEngineDir = "XQ_ENGINE_DIR"
	EnvCachePath = "XQ_ENGINE_CACHE"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheBadger = "badger"
	CacheSQLite = "sqlite"
)

// ErrInvalidConfig wraps validation failures.
var ErrInvalidConfig = errors.New("invalid engine configuration")

var validate = validator.New()

// Config is the root of engine.yaml.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Search    SearchConfig    `yaml:"search"`
	Scan      ScanConfig      `yaml:"scan"`
	Cache     CacheConfig     `yaml:"cache"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// EngineConfig locates and tunes the engine process.
type EngineConfig struct {
	// Dir holds the executable and the weights file.
	Dir string `yaml:"dir" validate:"required"`

	// Executable is the file name inside Dir. Default: "pikafish"
	Executable string `yaml:"executable,omitempty"`

	// Weights is the NNUE file name inside Dir. Default: "pikafish.nnue"
	Weights string `yaml:"weights,omitempty"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout" validate:"gt=0"`
	PollInterval     time.Duration `yaml:"poll_interval" validate:"gt=0"`
	StopGrace        time.Duration `yaml:"stop_grace" validate:"gt=0"`

	// HashMB is the transposition table size.
	HashMB int `yaml:"hash_mb" validate:"gte=1"`
}

// SearchConfig bounds a single evaluation.
type SearchConfig struct {
	SyncTimeout   time.Duration `yaml:"sync_timeout" validate:"gt=0"`
	SearchTimeout time.Duration `yaml:"search_timeout" validate:"gt=0"`
	StopTimeout   time.Duration `yaml:"stop_timeout" validate:"gt=0"`

	// DefaultDepth is used when a request gives no depth.
	DefaultDepth int `yaml:"default_depth" validate:"gte=1,lte=245"`
}

// ScanConfig controls whole-game scans.
type ScanConfig struct {
	Depth            int           `yaml:"depth" validate:"gte=1,lte=245"`
	BusyBackoff      time.Duration `yaml:"busy_backoff" validate:"gt=0"`
	EngineVersionKey string        `yaml:"engine_version_key" validate:"required"`
}

// CacheConfig selects the score cache backend.
type CacheConfig struct {
	Backend string `yaml:"backend" validate:"oneof=memory badger sqlite"`

	// Path is a directory for badger or a file for sqlite.
	Path string `yaml:"path" validate:"required_unless=Backend memory"`
}

// ServerConfig configures "xqengine serve".
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"gte=1,lte=65535"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`

	// Dir receives a JSON log file per run when set.
	Dir string `yaml:"dir,omitempty"`
}

// TelemetryConfig selects the OpenTelemetry exporter.
type TelemetryConfig struct {
	Exporter string `yaml:"exporter" validate:"oneof=none stdout prometheus otlp"`

	// Endpoint is the OTLP collector address.
	Endpoint string `yaml:"endpoint,omitempty" validate:"required_if=Exporter otlp"`
}

// DefaultConfig returns defaults rooted at home.
func DefaultConfig(home string) Config {
	base := filepath.Join(home, ".xqcoach")
	return Config{
		Engine: EngineConfig{
			Dir:              filepath.Join(base, "engine"),
			Executable:       supervisor.DefaultExecutableName,
			Weights:          supervisor.DefaultWeightsName,
			HandshakeTimeout: 5 * time.Second,
			PollInterval:     100 * time.Millisecond,
			StopGrace:        5 * time.Second,
			HashMB:           4096,
		},
		Search: SearchConfig{
			SyncTimeout:   10 * time.Second,
			SearchTimeout: 120 * time.Second,
			StopTimeout:   10 * time.Second,
			DefaultDepth:  18,
		},
		Scan: ScanConfig{
			Depth:            18,
			BusyBackoff:      500 * time.Millisecond,
			EngineVersionKey: "pikafish",
		},
		Cache: CacheConfig{
			Backend: CacheSQLite,
			Path:    filepath.Join(base, "scores.db"),
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 12230,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Exporter: "prometheus",
		},
	}
}

// DefaultPath returns ~/.xqcoach/engine.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".xqcoach", "engine.yaml"), nil
}

// Load reads, overrides and validates the configuration.
//
// Description:
//
//	An empty path means DefaultPath(). A missing file is created with
//	defaults first. Fields absent from the file keep their defaults.
//
// Outputs:
//
//	*Config - The validated configuration
//	error - Read, parse, or ErrInvalidConfig validation failures
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("could not find the user's home directory: %w", err)
	}
	if path == "" {
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Info("first run, creating engine config", slog.String("path", path))
		if err := createDefault(path, home); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig(home)
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func createDefault(path, home string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig(home))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides fields from the environment. getenv is usually
// os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvEngineDir)); v != "" {
		c.Engine.Dir = v
	}
	if v := strings.TrimSpace(getenv(EnvCachePath)); v != "" {
		c.Cache.Path = v
	}
}

// Validate checks struct tags and returns ErrInvalidConfig on failure.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// =============================================================================
// COMPONENT SETTINGS
// =============================================================================

// Supervisor returns the process supervisor settings.
func (c *Config) Supervisor() supervisor.Config {
	return supervisor.Config{
		HandshakeTimeout: c.Engine.HandshakeTimeout,
		PollInterval:     c.Engine.PollInterval,
		StopGrace:        c.Engine.StopGrace,
		HashSize:         c.Engine.HashMB,
	}
}

// Locator returns a locator over the engine directory.
func (c *Config) Locator() supervisor.DirLocator {
	return supervisor.DirLocator{
		Dir:        c.Engine.Dir,
		Executable: c.Engine.Executable,
		Weights:    c.Engine.Weights,
	}
}

// Evaluator returns the coordinator's wait bounds.
func (c *Config) Evaluator() evaluator.Config {
	return evaluator.Config{
		SyncTimeout:   c.Search.SyncTimeout,
		SearchTimeout: c.Search.SearchTimeout,
		StopTimeout:   c.Search.StopTimeout,
	}
}

// Scanner returns the batch scan settings.
func (c *Config) Scanner() scan.Config {
	return scan.Config{
		Depth:            c.Scan.Depth,
		BusyBackoff:      c.Scan.BusyBackoff,
		EngineVersionKey: c.Scan.EngineVersionKey,
	}
}

// Addr returns the server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
