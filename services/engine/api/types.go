// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes the engine client over HTTP with gin.
//
// Routes (under /v1/engine):
//
//	POST /evaluate  search one position
//	POST /scan      scan a game into the score cache
//	GET  /health    engine state and busy flag
//
// The server is meant for the local desktop application and listens on
// loopback by default.
package api

import (
	"github.com/AleutianAI/xqcoach/services/engine/evaluator"
	"github.com/AleutianAI/xqcoach/services/engine/scan"
)

// EvaluateRequest is the body of POST /v1/engine/evaluate.
type EvaluateRequest struct {
	// FEN is the position in internal (red/black) notation.
	FEN string `json:"fen" binding:"required"`

	// Depth is the search depth. Zero uses the configured default.
	Depth int `json:"depth" binding:"omitempty,gte=1,lte=245"`
}

// EvaluateResponse is the 200 body of POST /v1/engine/evaluate.
type EvaluateResponse struct {
	evaluator.Result
	Summary string `json:"summary"`
	Mate    bool   `json:"mate"`
}

// ScanRequest is the body of POST /v1/engine/scan.
type ScanRequest struct {
	Positions []ScanPosition `json:"positions" binding:"required,min=1,dive"`
}

// ScanPosition is one entry of ScanRequest.
type ScanPosition struct {
	ID  string `json:"id" binding:"required"`
	FEN string `json:"fen" binding:"required"`
}

// ScanResponse reports the final progress of a scan. Error is set when
// the scan aborted.
type ScanResponse struct {
	Progress scan.Progress `json:"progress"`
	Error    string        `json:"error,omitempty"`
	Index    *int          `json:"failed_index,omitempty"`
}

// HealthResponse is the body of GET /v1/engine/health.
type HealthResponse struct {
	State string `json:"state"`
	Busy  bool   `json:"busy"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code,omitempty"`
}
