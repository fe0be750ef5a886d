// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig("/home/u")
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/home/u/.xqcoach/engine", cfg.Engine.Dir)
	assert.Equal(t, 4096, cfg.Engine.HashMB)
	assert.Equal(t, 100*time.Millisecond, cfg.Engine.PollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Scan.BusyBackoff)
	assert.Equal(t, CacheSQLite, cfg.Cache.Backend)
}

func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvEngineDir, "")
	t.Setenv(EnvCachePath, "")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	path := filepath.Join(home, ".xqcoach", "engine.yaml")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var onDisk Config
	require.NoError(t, yaml.Unmarshal(data, &onDisk))
	assert.Equal(t, DefaultConfig(home), onDisk)
	assert.Equal(t, DefaultConfig(home), *cfg)
	assert.Contains(t, string(data), "poll_interval: 100ms")
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvEngineDir, "")
	t.Setenv(EnvCachePath, "")

	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  dir: /opt/pikafish
search:
  search_timeout: 30s
cache:
  backend: badger
  path: /var/lib/xq/scores
`), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "/opt/pikafish", cfg.Engine.Dir)
	assert.Equal(t, 30*time.Second, cfg.Search.SearchTimeout)
	assert.Equal(t, 10*time.Second, cfg.Search.SyncTimeout)
	assert.Equal(t, CacheBadger, cfg.Cache.Backend)
	assert.Equal(t, "pikafish", cfg.Scan.EngineVersionKey)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvEngineDir, "/env/engine")
	t.Setenv(EnvCachePath, "/env/scores.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "engine.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, "/env/engine", cfg.Engine.Dir)
	assert.Equal(t, "/env/scores.db", cfg.Cache.Path)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvEngineDir, "")
	t.Setenv(EnvCachePath, "")

	tests := []struct {
		name string
		yaml string
	}{
		{"unknown backend", "cache:\n  backend: redis\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"bad level", "logging:\n  level: loud\n"},
		{"zero timeout", "search:\n  search_timeout: 0s\n"},
		{"otlp without endpoint", "telemetry:\n  exporter: otlp\n"},
		{"badger without path", "cache:\n  backend: badger\n  path: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "engine.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))
			_, err := Load(path, nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_MemoryBackendNeedsNoPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvEngineDir, "")
	t.Setenv(EnvCachePath, "")

	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  backend: memory\n  path: \"\"\n"), 0o644))
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
}

func TestLoad_Malformed(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: [unclosed"), 0o644))

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestComponentSettings(t *testing.T) {
	cfg := DefaultConfig("/h")
	cfg.Engine.HashMB = 512

	assert.Equal(t, 512, cfg.Supervisor().HashSize)
	assert.Equal(t, 5*time.Second, cfg.Supervisor().HandshakeTimeout)
	assert.Equal(t, "/h/.xqcoach/engine", cfg.Locator().Dir)
	assert.Equal(t, 120*time.Second, cfg.Evaluator().SearchTimeout)
	assert.Equal(t, 18, cfg.Scanner().Depth)
	assert.Equal(t, "127.0.0.1:12230", cfg.Addr())
}
