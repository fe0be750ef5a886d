// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scan_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/xqcoach/services/engine/cache"
	"github.com/AleutianAI/xqcoach/services/engine/cache/badgercache"
	"github.com/AleutianAI/xqcoach/services/engine/enginetest"
	"github.com/AleutianAI/xqcoach/services/engine/evaluator"
	"github.com/AleutianAI/xqcoach/services/engine/scan"
	"github.com/AleutianAI/xqcoach/services/engine/supervisor"
)

func TestScanGame_AgainstFakeEngine(t *testing.T) {
	eng := enginetest.New()
	eng.OnSearch = func(fen string, depth int) enginetest.SearchScript {
		// Score is the board field's length so each position differs.
		board := strings.Fields(fen)[0]
		return enginetest.SearchScript{
			Infos:    []string{fmt.Sprintf("info depth %d hashfull 5 time 3 score cp %d", depth, len(board))},
			BestMove: "a0a1",
		}
	}
	sup := supervisor.New(supervisor.Config{
		HandshakeTimeout: 300 * time.Millisecond,
		PollInterval:     5 * time.Millisecond,
		StopGrace:        200 * time.Millisecond,
	}, enginetest.Locator(t), nil, supervisor.WithLauncher(eng))
	coord := evaluator.New(sup, evaluator.Config{SyncTimeout: time.Second, SearchTimeout: time.Second, StopTimeout: time.Second}, nil)
	defer coord.Close()

	store, err := badgercache.OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "b", "pikafish-test", 999))

	positions := []scan.Position{
		{ID: "a", FEN: "9/9/9/9/9/9/9/9/9/4K4 r"},
		{ID: "b", FEN: "9/9/9/9/9/9/9/9/9/3K5 b"},
		{ID: "c", FEN: "rnbakabnr/9/1c5c1/p1p1p1p1p/9/9/P1P1P1P1P/1C5C1/9/RNBAKABNR b"},
	}

	s := scan.New(coord, scan.Config{Depth: 8, EngineVersionKey: "pikafish-test"}, nil)
	var last scan.Progress
	calls := 0
	err = s.ScanGame(ctx, positions, store, func(p scan.Progress) {
		calls++
		last = p
	})
	require.NoError(t, err)

	assert.Equal(t, 4, calls)
	assert.True(t, last.IsCompleted)
	assert.Equal(t, 2, last.EvaluatedCount)
	assert.Equal(t, 2, eng.Searches(), "cached position is not searched")

	assert.Equal(t, []string{"go depth 8", "go depth 8"}, eng.CommandsWithPrefix("go "))
	positionsSent := eng.CommandsWithPrefix("position fen ")
	require.Len(t, positionsSent, 2)
	assert.Equal(t, "position fen 9/9/9/9/9/9/9/9/9/4K4 w - - 0 1", positionsSent[0])

	for id, want := range map[cache.PositionID]int{"a": 21, "b": 999, "c": 59} {
		got, ok, err := store.Get(ctx, id, "pikafish-test")
		require.NoError(t, err)
		assert.True(t, ok, id)
		assert.Equal(t, want, got, id)
	}

	n, err := store.Count(ctx, "pikafish-test")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
