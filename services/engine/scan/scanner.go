// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/xqcoach/services/engine/cache"
	"github.com/AleutianAI/xqcoach/services/engine/evaluator"
)

// Position is one entry of a game's ordered position list.
type Position struct {
	ID  cache.PositionID `json:"id"`
	FEN string           `json:"fen"`
}

// Progress is the snapshot passed to a ProgressFunc.
type Progress struct {
	// ScanID identifies the scan in logs and traces.
	ScanID string `json:"scan_id"`

	// CurrentIndex is the number of positions processed so far.
	CurrentIndex int `json:"current_index"`

	// Total is the number of positions in the scan.
	Total int `json:"total"`

	// EvaluatedCount counts positions scored and cached by this scan.
	EvaluatedCount int `json:"evaluated_count"`

	// LastResultSummary describes the most recent scored position, if any.
	LastResultSummary *string `json:"last_result_summary,omitempty"`

	// ElapsedSeconds is the time since the scan started.
	ElapsedSeconds *float64 `json:"elapsed_seconds,omitempty"`

	// IsCompleted is set on the final call only.
	IsCompleted bool `json:"is_completed"`

	// Cancelled is set on the final call when the scan stopped early
	// because its context was done.
	Cancelled bool `json:"cancelled"`
}

// ProgressFunc receives progress snapshots. It runs synchronously on the
// scanning goroutine.
type ProgressFunc func(Progress)

// Evaluator is the subset of *evaluator.Coordinator the scanner drives.
type Evaluator interface {
	Evaluate(ctx context.Context, req evaluator.Request) (*evaluator.Result, error)
}

// Config controls a Scanner.
type Config struct {
	// Depth is the search depth for every position.
	// Default: 18
	Depth int

	// BusyBackoff is the wait before the single retry of a busy engine.
	// Default: 500ms
	BusyBackoff time.Duration

	// EngineVersionKey scopes cache entries to one engine build.
	// Default: "pikafish"
	EngineVersionKey string
}

// DefaultConfig returns the production scan settings.
func DefaultConfig() Config {
	return Config{
		Depth:            18,
		BusyBackoff:      500 * time.Millisecond,
		EngineVersionKey: "pikafish",
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Depth <= 0 {
		c.Depth = def.Depth
	}
	if c.BusyBackoff <= 0 {
		c.BusyBackoff = def.BusyBackoff
	}
	if strings.TrimSpace(c.EngineVersionKey) == "" {
		c.EngineVersionKey = def.EngineVersionKey
	}
	return c
}

// Scanner evaluates whole games position by position.
//
// Thread Safety:
//
//	Safe for concurrent use, though concurrent scans contend for the
//	single engine and mostly skip each other's positions as busy.
type Scanner struct {
	eval   Evaluator
	config Config
	logger *slog.Logger
	sleep  func(time.Duration)
}

// New creates a scanner.
//
// Inputs:
//
//	eval - The evaluation entry point, usually a *evaluator.Coordinator.
//	cfg - Scan settings. Zero fields take defaults.
//	logger - Logger for diagnostics. Nil uses slog.Default().
func New(eval Evaluator, cfg Config, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		eval:   eval,
		config: cfg.withDefaults(),
		logger: logger,
		sleep:  time.Sleep,
	}
}

// Config returns the effective scan settings.
func (s *Scanner) Config() Config {
	return s.config
}

// ScanGame evaluates positions in order, writing new scores to scores.
//
// Description:
//
//	Skips positions already cached for the configured engine version.
//	An engine busy with another caller is retried once after BusyBackoff;
//	a second busy skips the position without failing the scan. Searches
//	with no score are skipped. Any other error aborts the scan.
//
// Inputs:
//
//	ctx - Cancellation token, checked only between positions. Searches
//	    run detached from it.
//	positions - Ordered positions of the game.
//	scores - Cache consulted before and written after each search.
//	progress - Called once per processed position and once more with
//	    IsCompleted set. May be nil.
//
// Outputs:
//
//	error - nil on completion or cancellation; *ScanError wrapping the
//	    cause on a hard failure
func (s *Scanner) ScanGame(ctx context.Context, positions []Position, scores cache.ScoreCache, progress ProgressFunc) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if scores == nil {
		return fmt.Errorf("score cache must not be nil")
	}
	if progress == nil {
		progress = func(Progress) {}
	}

	scanID := uuid.NewString()
	start := time.Now()
	logger := s.logger.With(slog.String("scan_id", scanID))

	ctx, span := tracer.Start(ctx, "Scanner.ScanGame")
	defer span.End()
	span.SetAttributes(
		attribute.String("scan.id", scanID),
		attribute.Int("scan.total", len(positions)),
		attribute.String("scan.engine_version", s.config.EngineVersionKey),
	)

	// Searches must outlive cancellation of the scan.
	searchCtx := context.WithoutCancel(ctx)

	state := Progress{ScanID: scanID, Total: len(positions)}
	snapshot := func(completed bool) Progress {
		p := state
		elapsed := time.Since(start).Seconds()
		p.ElapsedSeconds = &elapsed
		p.IsCompleted = completed
		return p
	}

	logger.Info("scan started", slog.Int("positions", len(positions)))

	var scanErr error
	for i, pos := range positions {
		if ctx.Err() != nil {
			state.Cancelled = true
			break
		}

		outcome, summary, err := s.scanPosition(searchCtx, pos, scores)
		recordPosition(ctx, outcome)
		if err != nil {
			scanErr = &ScanError{Index: i, PositionID: pos.ID, Err: err}
			break
		}

		state.CurrentIndex = i + 1
		if outcome == outcomeEvaluated {
			state.EvaluatedCount++
			state.LastResultSummary = &summary
		}
		logger.Debug("scan position",
			slog.Int("index", i),
			slog.String("position_id", string(pos.ID)),
			slog.String("outcome", outcome),
		)
		progress(snapshot(false))
	}

	progress(snapshot(true))

	duration := time.Since(start)
	recordScan(ctx, duration, state.Cancelled, scanErr != nil)
	span.SetAttributes(
		attribute.Int("scan.processed", state.CurrentIndex),
		attribute.Int("scan.evaluated", state.EvaluatedCount),
		attribute.Bool("scan.cancelled", state.Cancelled),
	)

	if scanErr != nil {
		span.RecordError(scanErr)
		span.SetStatus(codes.Error, "scan aborted")
		logger.Error("scan aborted",
			slog.Int("processed", state.CurrentIndex),
			slog.Int("evaluated", state.EvaluatedCount),
			slog.String("error", scanErr.Error()),
		)
		return scanErr
	}

	logger.Info("scan finished",
		slog.Int("processed", state.CurrentIndex),
		slog.Int("evaluated", state.EvaluatedCount),
		slog.Bool("cancelled", state.Cancelled),
		slog.Duration("duration", duration),
	)
	return nil
}

// scanPosition handles one position and returns its outcome label and,
// for evaluated positions, the result summary.
func (s *Scanner) scanPosition(ctx context.Context, pos Position, scores cache.ScoreCache) (string, string, error) {
	if strings.TrimSpace(string(pos.ID)) == "" || strings.TrimSpace(pos.FEN) == "" {
		return outcomeFailed, "", fmt.Errorf("%w: id=%q fen=%q", ErrInvalidPosition, pos.ID, pos.FEN)
	}

	if _, ok, err := scores.Get(ctx, pos.ID, s.config.EngineVersionKey); err != nil {
		return outcomeFailed, "", fmt.Errorf("read cache: %w", err)
	} else if ok {
		return outcomeCached, "", nil
	}

	req := evaluator.Request{FEN: pos.FEN, Depth: s.config.Depth}
	res, err := s.eval.Evaluate(ctx, req)
	if errors.Is(err, evaluator.ErrBusy) {
		recordBusyRetry(ctx)
		s.sleep(s.config.BusyBackoff)
		res, err = s.eval.Evaluate(ctx, req)
		if errors.Is(err, evaluator.ErrBusy) {
			s.logger.Info("engine still busy, skipping position", slog.String("position_id", string(pos.ID)))
			return outcomeBusySkipped, "", nil
		}
	}
	if err != nil {
		return outcomeFailed, "", err
	}
	if res == nil {
		return outcomeInconclusive, "", nil
	}

	if err := scores.Put(ctx, pos.ID, s.config.EngineVersionKey, res.Score); err != nil {
		return outcomeFailed, "", fmt.Errorf("write cache: %w", err)
	}
	return outcomeEvaluated, res.Summary(), nil
}
