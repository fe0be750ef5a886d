// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badgercache

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/xqcoach/services/engine/cache"
)

func TestOpenInMemory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Get(ctx, "p1", "v1")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, score := range []int{0, 35, -112, 29997, -29998} {
		require.NoError(t, s.Put(ctx, "p1", "v1", score))
		got, ok, err := s.Get(ctx, "p1", "v1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, score, got)
	}
	assert.Empty(t, s.Path())
}

func TestOpen_Persists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := DefaultConfig(dir)
	cfg.GCInterval = time.Hour
	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "p1", "v1", 77))
	require.NoError(t, s.Close())

	s2, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer s2.Close()

	got, ok, err := s2.Get(ctx, "p1", "v1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 77, got)
	assert.Equal(t, dir, s2.Path())
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestCount_PerEngineVersion(t *testing.T) {
	ctx := context.Background()
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(ctx, "p1", "v1", 1))
	require.NoError(t, s.Put(ctx, "p2", "v1", 2))
	require.NoError(t, s.Put(ctx, "p1", "v10", 3))

	n, err := s.Count(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Count(ctx, "v10")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGet_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("score/v1/p1"), []byte("abc"))
	}))

	_, _, err = s.Get(ctx, "p1", "v1")
	assert.ErrorIs(t, err, ErrCorruptEntry)
}

func TestInvalidKey(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	err = s.Put(context.Background(), "", "v1", 1)
	assert.ErrorIs(t, err, cache.ErrInvalidKey)
}
