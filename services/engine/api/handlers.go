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
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/xqcoach/services/engine/cache"
	"github.com/AleutianAI/xqcoach/services/engine/evaluator"
	"github.com/AleutianAI/xqcoach/services/engine/scan"
	"github.com/AleutianAI/xqcoach/services/engine/supervisor"
)

// Evaluator is the coordinator surface the handlers use.
type Evaluator interface {
	Evaluate(ctx context.Context, req evaluator.Request) (*evaluator.Result, error)
	IsBusy() bool
	State() supervisor.State
}

// Scanner runs whole-game scans.
type Scanner interface {
	ScanGame(ctx context.Context, positions []scan.Position, scores cache.ScoreCache, progress scan.ProgressFunc) error
}

// Handlers serves the engine routes.
type Handlers struct {
	eval         Evaluator
	scanner      Scanner
	scores       cache.ScoreCache
	defaultDepth int
	logger       *slog.Logger
}

// NewHandlers creates the route handlers.
//
// Inputs:
//
//	eval - The coordinator.
//	scanner - Scanner for POST /scan.
//	scores - Cache the scanner fills.
//	defaultDepth - Depth used when a request gives none.
//	logger - Nil uses slog.Default().
func NewHandlers(eval Evaluator, scanner Scanner, scores cache.ScoreCache, defaultDepth int, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultDepth <= 0 {
		defaultDepth = 18
	}
	return &Handlers{
		eval:         eval,
		scanner:      scanner,
		scores:       scores,
		defaultDepth: defaultDepth,
		logger:       logger,
	}
}

// HandleEvaluate handles POST /v1/engine/evaluate.
//
// Response:
//
//	200 OK: EvaluateResponse
//	204 No Content: the search produced no score
//	400 Bad Request: invalid body
//	429 Too Many Requests: another search is in flight
//	503 Service Unavailable: engine missing or not running
//	504 Gateway Timeout: the engine stopped responding
func (h *Handlers) HandleEvaluate(c *gin.Context) {
	logger := h.logger.With(slog.String("request_id", getOrCreateRequestID(c)), slog.String("handler", "HandleEvaluate"))

	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "INVALID_REQUEST"})
		return
	}
	if req.Depth == 0 {
		req.Depth = h.defaultDepth
	}

	res, err := h.eval.Evaluate(c.Request.Context(), evaluator.Request{FEN: req.FEN, Depth: req.Depth})
	if err != nil {
		status, code := classify(err)
		if status >= http.StatusInternalServerError {
			logger.Error("evaluation failed", slog.String("error", err.Error()))
		}
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}
	if res == nil {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, EvaluateResponse{Result: *res, Summary: res.Summary(), Mate: res.IsMate()})
}

// HandleScan handles POST /v1/engine/scan.
//
// Description:
//
//	Runs the scan synchronously. A client that disconnects cancels the
//	scan at the next position boundary.
//
// Response:
//
//	200 OK: ScanResponse with the final progress
//	400 Bad Request: invalid body
//	4xx/5xx: ScanResponse with Error and failed_index when the scan aborted
func (h *Handlers) HandleScan(c *gin.Context) {
	logger := h.logger.With(slog.String("request_id", getOrCreateRequestID(c)), slog.String("handler", "HandleScan"))

	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "INVALID_REQUEST"})
		return
	}

	positions := make([]scan.Position, len(req.Positions))
	for i, p := range req.Positions {
		positions[i] = scan.Position{ID: cache.PositionID(p.ID), FEN: p.FEN}
	}

	var final scan.Progress
	err := h.scanner.ScanGame(c.Request.Context(), positions, h.scores, func(p scan.Progress) {
		if p.IsCompleted {
			final = p
		}
	})
	if err != nil {
		status, _ := classify(err)
		resp := ScanResponse{Progress: final, Error: err.Error()}
		var scanErr *scan.ScanError
		if errors.As(err, &scanErr) {
			idx := scanErr.Index
			resp.Index = &idx
		}
		logger.Error("scan failed", slog.String("error", err.Error()))
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusOK, ScanResponse{Progress: final})
}

// HandleHealth handles GET /v1/engine/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		State: h.eval.State().String(),
		Busy:  h.eval.IsBusy(),
	})
}

// classify maps an evaluation or scan error to a status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, evaluator.ErrBusy):
		return http.StatusTooManyRequests, "ENGINE_BUSY"
	case errors.Is(err, evaluator.ErrInvalidRequest), errors.Is(err, scan.ErrInvalidPosition):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, evaluator.ErrEngineNotFound):
		return http.StatusServiceUnavailable, "ENGINE_NOT_FOUND"
	case errors.Is(err, evaluator.ErrNotRunning):
		return http.StatusServiceUnavailable, "ENGINE_NOT_RUNNING"
	case errors.Is(err, evaluator.ErrTimeout):
		return http.StatusGatewayTimeout, "ENGINE_TIMEOUT"
	case errors.Is(err, context.Canceled):
		return 499, "CLIENT_CLOSED"
	default:
		return http.StatusInternalServerError, "EVALUATION_FAILED"
	}
}

// getOrCreateRequestID echoes X-Request-ID or generates one.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
