// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/xqcoach/services/engine/cache"
	"github.com/AleutianAI/xqcoach/services/engine/enginetest"
	"github.com/AleutianAI/xqcoach/services/engine/evaluator"
	"github.com/AleutianAI/xqcoach/services/engine/scan"
	"github.com/AleutianAI/xqcoach/services/engine/supervisor"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockEvaluator struct {
	evaluateFunc func(ctx context.Context, req evaluator.Request) (*evaluator.Result, error)
	lastReq      evaluator.Request
	busy         bool
	state        supervisor.State
}

func (m *mockEvaluator) Evaluate(ctx context.Context, req evaluator.Request) (*evaluator.Result, error) {
	m.lastReq = req
	if m.evaluateFunc != nil {
		return m.evaluateFunc(ctx, req)
	}
	return &evaluator.Result{Score: 35}, nil
}

func (m *mockEvaluator) IsBusy() bool            { return m.busy }
func (m *mockEvaluator) State() supervisor.State { return m.state }

type mockScanner struct {
	scanFunc func(ctx context.Context, positions []scan.Position, scores cache.ScoreCache, progress scan.ProgressFunc) error
}

func (m *mockScanner) ScanGame(ctx context.Context, positions []scan.Position, scores cache.ScoreCache, progress scan.ProgressFunc) error {
	return m.scanFunc(ctx, positions, scores, progress)
}

func newTestRouter(eval Evaluator, scanner Scanner) *gin.Engine {
	h := NewHandlers(eval, scanner, cache.NewMemory(), 12, nil)
	return NewRouter("xqengine-test", h, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("engine_evaluation_total 1\n"))
	}))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleEvaluate_OK(t *testing.T) {
	depth := "12"
	eval := &mockEvaluator{evaluateFunc: func(context.Context, evaluator.Request) (*evaluator.Result, error) {
		return &evaluator.Result{Score: 29997, Depth: &depth, BestMove: "h2e2"}, nil
	}}
	router := newTestRouter(eval, nil)

	rec := doJSON(t, router, http.MethodPost, "/v1/engine/evaluate", EvaluateRequest{FEN: "9/9/9/9/9/9/9/9/9/4K4 r"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp EvaluateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 29997, resp.Score)
	assert.Equal(t, "h2e2", resp.BestMove)
	assert.Equal(t, "d12 mate+3", resp.Summary)
	assert.True(t, resp.Mate)
	assert.Equal(t, 12, eval.lastReq.Depth, "default depth applied")
}

func TestHandleEvaluate_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		res      *evaluator.Result
		err      error
		wantCode int
		wantErr  string
	}{
		{"inconclusive", nil, nil, http.StatusNoContent, ""},
		{"busy", nil, evaluator.ErrBusy, http.StatusTooManyRequests, "ENGINE_BUSY"},
		{"not found", nil, fmt.Errorf("start engine: %w", evaluator.ErrEngineNotFound), http.StatusServiceUnavailable, "ENGINE_NOT_FOUND"},
		{"not running", nil, evaluator.ErrNotRunning, http.StatusServiceUnavailable, "ENGINE_NOT_RUNNING"},
		{"timeout", nil, &supervisor.TimeoutError{Substring: "readyok", Timeout: time.Second}, http.StatusGatewayTimeout, "ENGINE_TIMEOUT"},
		{"failed", nil, fmt.Errorf("%w: %w", evaluator.ErrEvaluationFailed, evaluator.ErrTimeout), http.StatusGatewayTimeout, "ENGINE_TIMEOUT"},
		{"other", nil, errors.New("boom"), http.StatusInternalServerError, "EVALUATION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := &mockEvaluator{evaluateFunc: func(context.Context, evaluator.Request) (*evaluator.Result, error) {
				return tt.res, tt.err
			}}
			rec := doJSON(t, newTestRouter(eval, nil), http.MethodPost, "/v1/engine/evaluate", EvaluateRequest{FEN: "x r", Depth: 4})
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantErr != "" {
				var resp ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantErr, resp.Code)
			}
		})
	}
}

func TestHandleEvaluate_BadRequest(t *testing.T) {
	router := newTestRouter(&mockEvaluator{}, nil)

	rec := doJSON(t, router, http.MethodPost, "/v1/engine/evaluate", map[string]any{"depth": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/v1/engine/evaluate", EvaluateRequest{FEN: "x r", Depth: 999})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleScan(t *testing.T) {
	var got []scan.Position
	scanner := &mockScanner{scanFunc: func(_ context.Context, positions []scan.Position, _ cache.ScoreCache, progress scan.ProgressFunc) error {
		got = positions
		progress(scan.Progress{CurrentIndex: 1, Total: 2, EvaluatedCount: 1})
		progress(scan.Progress{CurrentIndex: 2, Total: 2, EvaluatedCount: 2, IsCompleted: true})
		return nil
	}}
	router := newTestRouter(&mockEvaluator{}, scanner)

	rec := doJSON(t, router, http.MethodPost, "/v1/engine/scan", ScanRequest{Positions: []ScanPosition{
		{ID: "a", FEN: "fen-a r"},
		{ID: "b", FEN: "fen-b b"},
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ScanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Progress.IsCompleted)
	assert.Equal(t, 2, resp.Progress.EvaluatedCount)
	assert.Empty(t, resp.Error)
	assert.Equal(t, []scan.Position{{ID: "a", FEN: "fen-a r"}, {ID: "b", FEN: "fen-b b"}}, got)
}

func TestHandleScan_Aborted(t *testing.T) {
	scanner := &mockScanner{scanFunc: func(_ context.Context, _ []scan.Position, _ cache.ScoreCache, progress scan.ProgressFunc) error {
		progress(scan.Progress{CurrentIndex: 1, Total: 3, IsCompleted: true})
		return &scan.ScanError{Index: 1, PositionID: "b", Err: evaluator.ErrEngineNotFound}
	}}
	router := newTestRouter(&mockEvaluator{}, scanner)

	rec := doJSON(t, router, http.MethodPost, "/v1/engine/scan", ScanRequest{Positions: []ScanPosition{{ID: "a", FEN: "f r"}}})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ScanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Index)
	assert.Equal(t, 1, *resp.Index)
	assert.True(t, resp.Progress.IsCompleted)
	assert.Contains(t, resp.Error, "position 1")
}

func TestHandleScan_EmptyPositions(t *testing.T) {
	router := newTestRouter(&mockEvaluator{}, &mockScanner{})
	rec := doJSON(t, router, http.MethodPost, "/v1/engine/scan", ScanRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	router := newTestRouter(&mockEvaluator{state: supervisor.StateEvaluating, busy: true}, nil)

	rec := doJSON(t, router, http.MethodGet, "/v1/engine/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "evaluating", resp.State)
	assert.True(t, resp.Busy)
}

func TestMetricsRoute(t *testing.T) {
	router := newTestRouter(&mockEvaluator{}, nil)
	rec := doJSON(t, router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "engine_evaluation_total")

	bare := NewRouter("x", NewHandlers(&mockEvaluator{}, nil, nil, 0, nil), nil)
	rec = doJSON(t, bare, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDEchoed(t *testing.T) {
	router := newTestRouter(&mockEvaluator{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/engine/evaluate", bytes.NewBufferString(`{"fen":"x r","depth":3}`))
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestEvaluate_EndToEnd(t *testing.T) {
	eng := enginetest.New()
	eng.OnSearch = func(_ string, depth int) enginetest.SearchScript {
		return enginetest.SearchScript{Infos: []string{fmt.Sprintf("info depth %d hashfull 7 time 20 score cp -48", depth)}, BestMove: "b0c2"}
	}
	sup := supervisor.New(supervisor.Config{
		HandshakeTimeout: 300 * time.Millisecond,
		PollInterval:     5 * time.Millisecond,
		StopGrace:        200 * time.Millisecond,
	}, enginetest.Locator(t), nil, supervisor.WithLauncher(eng))
	coord := evaluator.New(sup, evaluator.Config{SearchTimeout: time.Second}, nil)
	defer coord.Close()

	scores := cache.NewMemory()
	h := NewHandlers(coord, scan.New(coord, scan.Config{Depth: 6, EngineVersionKey: "v"}, nil), scores, 9, nil)
	router := NewRouter("xqengine-test", h, nil)

	rec := doJSON(t, router, http.MethodPost, "/v1/engine/evaluate", EvaluateRequest{FEN: "9/9/9/9/9/9/9/9/9/4K4 b"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp EvaluateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, -48, resp.Score)
	assert.Equal(t, "d9 cp -48", resp.Summary)
	assert.Equal(t, []string{"position fen 9/9/9/9/9/9/9/9/9/4K4 b - - 0 1"}, eng.CommandsWithPrefix("position"))

	rec = doJSON(t, router, http.MethodPost, "/v1/engine/scan", ScanRequest{Positions: []ScanPosition{
		{ID: "p1", FEN: "9/9/9/9/9/9/9/9/9/4K4 r"},
	}})
	require.Equal(t, http.StatusOK, rec.Code)
	score, ok, err := scores.Get(context.Background(), "p1", "v")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, -48, score)

	rec = doJSON(t, router, http.MethodGet, "/v1/engine/health", nil)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ready", health.State)
	assert.False(t, health.Busy)
}
