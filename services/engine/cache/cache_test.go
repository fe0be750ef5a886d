// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	key, err := Key("pos-1", "pikafish-2024")
	require.NoError(t, err)
	assert.Equal(t, "pikafish-2024/pos-1", key)

	_, err = Key("", "v1")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = Key("pos-1", " ")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestMemory_GetPut(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok, err := m.Get(ctx, "p1", "v1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Put(ctx, "p1", "v1", 35))
	score, ok, err := m.Get(ctx, "p1", "v1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 35, score)

	require.NoError(t, m.Put(ctx, "p1", "v1", -12))
	score, _, _ = m.Get(ctx, "p1", "v1")
	assert.Equal(t, -12, score)
	assert.Equal(t, 1, m.Len())
}

func TestMemory_VersionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, "p1", "v1", 10))

	_, ok, err := m.Get(ctx, "p1", "v2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory()

	assert.ErrorIs(t, m.Put(ctx, "p1", "v1", 1), context.Canceled)
	_, _, err := m.Get(ctx, "p1", "v1")
	assert.ErrorIs(t, err, context.Canceled)
}
