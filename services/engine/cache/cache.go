// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache defines the score cache the batch scanner consults before
// searching a position, plus an in-memory implementation.
//
// Scores are keyed by position and engine version, so upgrading the engine
// or its weights invalidates earlier results without a migration.
//
// Backends:
//
//	Memory        - process lifetime, tests
//	badgercache   - embedded BadgerDB directory
//	sqlitecache   - single SQLite file
package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// PositionID identifies a position within the application's game store.
type PositionID string

// ErrInvalidKey indicates an empty position ID or engine version.
var ErrInvalidKey = errors.New("invalid cache key")

// ScoreCache stores engine scores per (position, engine version).
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use.
type ScoreCache interface {
	// Get returns the cached score and true, or false when absent.
	Get(ctx context.Context, id PositionID, engineVersion string) (int, bool, error)

	// Put stores score, replacing any earlier value.
	Put(ctx context.Context, id PositionID, engineVersion string, score int) error
}

// Key returns the composite storage key for a cache entry.
//
// The engine version comes first so one version's entries share a prefix.
func Key(id PositionID, engineVersion string) (string, error) {
	if strings.TrimSpace(string(id)) == "" || strings.TrimSpace(engineVersion) == "" {
		return "", ErrInvalidKey
	}
	return engineVersion + "/" + string(id), nil
}

// Memory is a map-backed ScoreCache.
type Memory struct {
	mu     sync.RWMutex
	scores map[string]int
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{scores: make(map[string]int)}
}

// Get implements ScoreCache.
func (m *Memory) Get(ctx context.Context, id PositionID, engineVersion string) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	key, err := Key(id, engineVersion)
	if err != nil {
		return 0, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	score, ok := m.scores[key]
	return score, ok, nil
}

// Put implements ScoreCache.
func (m *Memory) Put(ctx context.Context, id PositionID, engineVersion string, score int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := Key(id, engineVersion)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.scores[key] = score
	m.mu.Unlock()
	return nil
}

// Len returns the number of cached entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.scores)
}
