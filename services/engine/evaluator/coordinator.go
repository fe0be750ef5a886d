// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/xqcoach/services/engine/supervisor"
	"github.com/AleutianAI/xqcoach/services/engine/uci"
)

// Engine is the subset of *supervisor.Supervisor the coordinator drives.
type Engine interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ready() bool
	State() supervisor.State
	Send(command string) error
	AwaitLine(ctx context.Context, substring string, timeout time.Duration) (string, error)
	ClearBuffer()
	BeginSearch()
	EndSearch()
}

// Config holds the coordinator's wait bounds.
type Config struct {
	// SyncTimeout bounds the isready/readyok barrier before each search.
	// Default: 10s
	SyncTimeout time.Duration

	// SearchTimeout bounds the wait for bestmove. Deep searches legitimately
	// run for minutes.
	// Default: 120s
	SearchTimeout time.Duration

	// StopTimeout bounds the wait for bestmove after a forced stop.
	// Default: 10s
	StopTimeout time.Duration
}

// DefaultConfig returns the production wait bounds.
func DefaultConfig() Config {
	return Config{
		SyncTimeout:   10 * time.Second,
		SearchTimeout: 120 * time.Second,
		StopTimeout:   10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = def.SyncTimeout
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = def.SearchTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = def.StopTimeout
	}
	return c
}

// Coordinator serializes evaluations against one engine.
//
// Thread Safety:
//
//	Safe for concurrent use. At most one search runs at a time; concurrent
//	callers get ErrBusy.
type Coordinator struct {
	engine   Engine
	config   Config
	logger   *slog.Logger
	flight   *semaphore.Weighted
	inFlight atomic.Bool
}

// New creates a coordinator for engine.
//
// Inputs:
//
//	engine - The supervised engine, usually a *supervisor.Supervisor.
//	cfg - Wait bounds. Zero fields take defaults.
//	logger - Logger for diagnostics. Nil uses slog.Default().
func New(engine Engine, cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		engine: engine,
		config: cfg.withDefaults(),
		logger: logger,
		flight: semaphore.NewWeighted(1),
	}
}

// Evaluate searches one position.
//
// Description:
//
//	Acquires the single-flight lock without blocking, starts the engine if
//	it is not ready, resynchronizes, runs "go depth" and parses the final
//	info lines. A search exceeding SearchTimeout is forced to stop and the
//	result is flagged TimedOut.
//
// Inputs:
//
//	ctx - Cancels waits early. Cancellation mid-search leaves the engine
//	    searching; the next call's resync stops it.
//	req - Position and depth.
//
// Outputs:
//
//	*Result - The score and diagnostics, or nil if the search reported
//	    no score
//	error - ErrBusy if another search is in flight; startup, protocol or
//	    ErrEvaluationFailed errors otherwise
//
// Thread Safety:
//
//	Safe for concurrent use.
func (c *Coordinator) Evaluate(ctx context.Context, req Request) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if strings.TrimSpace(req.FEN) == "" || req.Depth <= 0 {
		return nil, fmt.Errorf("%w: fen=%q depth=%d", ErrInvalidRequest, req.FEN, req.Depth)
	}

	start := time.Now()
	if !c.flight.TryAcquire(1) {
		c.logger.Debug("engine busy, evaluation rejected")
		recordEvaluation(ctx, outcomeBusy, 0)
		return nil, ErrBusy
	}
	c.inFlight.Store(true)
	defer func() {
		c.inFlight.Store(false)
		c.flight.Release(1)
	}()

	ctx, span := tracer.Start(ctx, "Coordinator.Evaluate")
	defer span.End()
	span.SetAttributes(attribute.Int("engine.depth", req.Depth))

	res, err := c.evaluate(ctx, req)
	duration := time.Since(start)

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation failed")
		recordEvaluation(ctx, outcomeError, duration)
		return nil, err
	case res == nil:
		c.logger.Info("engine search inconclusive",
			slog.Int("depth", req.Depth),
			slog.Duration("duration", duration),
		)
		span.SetAttributes(attribute.Bool("engine.scored", false))
		recordEvaluation(ctx, outcomeInconclusive, duration)
		return nil, nil
	}

	c.logSummary(req, res, duration)
	span.SetAttributes(
		attribute.Bool("engine.scored", true),
		attribute.Int("engine.score", res.Score),
		attribute.Bool("engine.timed_out", res.TimedOut),
	)
	outcome := outcomeScored
	if res.TimedOut {
		outcome = outcomeTimedOut
	}
	recordEvaluation(ctx, outcome, duration)
	return res, nil
}

func (c *Coordinator) evaluate(ctx context.Context, req Request) (*Result, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}

	c.engine.BeginSearch()
	defer c.engine.EndSearch()

	if err := c.resync(ctx); err != nil {
		return nil, fmt.Errorf("resync: %w", err)
	}

	if err := c.engine.Send(uci.PositionCommand(req.FEN)); err != nil {
		return nil, err
	}
	if err := c.engine.Send(uci.GoDepthCommand(req.Depth)); err != nil {
		return nil, err
	}

	buffer, timedOut, err := c.awaitBestMove(ctx)
	if err != nil {
		return nil, err
	}

	res, ok := extractResult(buffer)
	if !ok {
		return nil, nil
	}
	res.TimedOut = timedOut
	return &res, nil
}

// ensureReady starts the engine if it is not ready, tearing down any
// stale or half-started process first.
func (c *Coordinator) ensureReady(ctx context.Context) error {
	if c.engine.Ready() {
		return nil
	}

	if c.engine.State() != supervisor.StateNotStarted {
		c.logger.Warn("engine not ready, restarting", slog.String("state", c.engine.State().String()))
		if err := c.engine.Stop(ctx); err != nil {
			return fmt.Errorf("stop stale engine: %w", err)
		}
	}

	if err := c.engine.Start(ctx); err != nil {
		if c.engine.State() == supervisor.StateStarting {
			_ = c.engine.Stop(context.WithoutCancel(ctx))
		}
		return fmt.Errorf("start engine: %w", err)
	}
	return nil
}

// resync abandons any previous search output and waits on a readyok barrier.
func (c *Coordinator) resync(ctx context.Context) error {
	if err := c.engine.Send(uci.CmdStop); err != nil {
		return err
	}
	c.engine.ClearBuffer()
	if err := c.engine.Send(uci.CmdIsReady); err != nil {
		return err
	}
	if _, err := c.engine.AwaitLine(ctx, uci.RespReadyOK, c.config.SyncTimeout); err != nil {
		return err
	}
	c.engine.ClearBuffer()
	return nil
}

// awaitBestMove waits for the search to finish, forcing a stop on timeout.
func (c *Coordinator) awaitBestMove(ctx context.Context) (string, bool, error) {
	buffer, err := c.engine.AwaitLine(ctx, uci.RespBestMove, c.config.SearchTimeout)
	if err == nil {
		return buffer, false, nil
	}
	if !errors.Is(err, ErrTimeout) {
		return "", false, fmt.Errorf("await bestmove: %w", err)
	}

	c.logger.Warn("engine search timed out, forcing stop",
		slog.Duration("timeout", c.config.SearchTimeout),
		slog.Int("buffered_bytes", len(buffer)),
	)
	if err := c.engine.Send(uci.CmdStop); err != nil {
		return "", false, fmt.Errorf("force stop: %w", err)
	}

	buffer, err = c.engine.AwaitLine(ctx, uci.RespBestMove, c.config.StopTimeout)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return "", false, fmt.Errorf("%w: no bestmove after forced stop: %w", ErrEvaluationFailed, err)
		}
		return "", false, fmt.Errorf("await bestmove after stop: %w", err)
	}
	return buffer, true, nil
}

func (c *Coordinator) logSummary(req Request, res *Result, duration time.Duration) {
	attrs := []any{
		slog.Int("requested_depth", req.Depth),
		slog.Int("score", res.Score),
		slog.Bool("timed_out", res.TimedOut),
		slog.Duration("duration", duration),
	}
	if res.Depth != nil {
		attrs = append(attrs, slog.String("depth", *res.Depth))
	}
	if res.HashFullPermille != nil {
		attrs = append(attrs, slog.Int("hashfull", *res.HashFullPermille))
	}
	if res.ElapsedMs != nil {
		attrs = append(attrs, slog.Int("time_ms", *res.ElapsedMs))
	}
	c.logger.Info("engine evaluation", attrs...)
}

// IsBusy reports whether a search is in flight.
func (c *Coordinator) IsBusy() bool {
	return c.inFlight.Load()
}

// State returns the engine's lifecycle state.
func (c *Coordinator) State() supervisor.State {
	return c.engine.State()
}

// Warmup starts the engine ahead of the first evaluation.
//
// Returns ErrBusy if a search is in flight.
func (c *Coordinator) Warmup(ctx context.Context) error {
	if !c.flight.TryAcquire(1) {
		return ErrBusy
	}
	defer c.flight.Release(1)
	return c.ensureReady(ctx)
}

// Restart stops the engine so the next evaluation relaunches it and
// resolves its files again. The engine is not started here.
//
// Returns ErrBusy if a search is in flight.
func (c *Coordinator) Restart(ctx context.Context) error {
	if !c.flight.TryAcquire(1) {
		return ErrBusy
	}
	defer c.flight.Release(1)
	c.logger.Info("restarting engine", slog.String("state", c.engine.State().String()))
	return c.engine.Stop(ctx)
}

// Close stops the engine.
func (c *Coordinator) Close() error {
	return c.engine.Stop(context.Background())
}
