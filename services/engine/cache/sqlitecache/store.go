// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sqlitecache stores engine scores in a single SQLite file using
// the pure-Go modernc.org/sqlite driver.
package sqlitecache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/AleutianAI/xqcoach/services/engine/cache"
)

// DefaultFileName is the database file created inside a data directory.
const DefaultFileName = "scores.db"

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS engine_scores (
	engine_version TEXT    NOT NULL,
	position_id    TEXT    NOT NULL,
	score          INTEGER NOT NULL,
	updated_at     TEXT    NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (engine_version, position_id)
);`

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Store is a SQLite-backed cache.ScoreCache.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
}

var _ cache.ScoreCache = (*Store)(nil)

// Open opens or creates the database at path.
//
// The parent directory is created if needed. MemoryPath opens a database
// that lives until Close.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlitecache: path is required")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("sqlitecache: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitecache: open database: %w", err)
	}
	if path == MemoryPath {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	if path != MemoryPath {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlitecache: pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitecache: migration: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// OpenDir opens DefaultFileName inside dir.
func OpenDir(dir string) (*Store, error) {
	return Open(filepath.Join(dir, DefaultFileName))
}

// Get implements cache.ScoreCache.
func (s *Store) Get(ctx context.Context, id cache.PositionID, engineVersion string) (int, bool, error) {
	if _, err := cache.Key(id, engineVersion); err != nil {
		return 0, false, err
	}

	var score int
	err := s.db.QueryRowContext(ctx,
		`SELECT score FROM engine_scores WHERE engine_version = ? AND position_id = ?`,
		engineVersion, string(id),
	).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("sqlitecache: get score: %w", err)
	}
	return score, true, nil
}

// Put implements cache.ScoreCache.
func (s *Store) Put(ctx context.Context, id cache.PositionID, engineVersion string, score int) error {
	if _, err := cache.Key(id, engineVersion); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO engine_scores (engine_version, position_id, score)
		 VALUES (?, ?, ?)
		 ON CONFLICT (engine_version, position_id)
		 DO UPDATE SET score = excluded.score, updated_at = datetime('now')`,
		engineVersion, string(id), score,
	)
	if err != nil {
		return fmt.Errorf("sqlitecache: put score: %w", err)
	}
	return nil
}

// Count returns the number of entries stored for engineVersion.
func (s *Store) Count(ctx context.Context, engineVersion string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM engine_scores WHERE engine_version = ?`, engineVersion,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlitecache: count scores: %w", err)
	}
	return n, nil
}

// Purge deletes every entry not produced by keepVersion and returns how
// many rows went.
func (s *Store) Purge(ctx context.Context, keepVersion string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM engine_scores WHERE engine_version <> ?`, keepVersion)
	if err != nil {
		return 0, fmt.Errorf("sqlitecache: purge: %w", err)
	}
	return res.RowsAffected()
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
