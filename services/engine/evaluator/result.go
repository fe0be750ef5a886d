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
	"fmt"
	"strings"

	"github.com/AleutianAI/xqcoach/services/engine/uci"
)

// Request asks for one position to be searched to a fixed depth.
type Request struct {
	// FEN is the position in internal (red/black) notation.
	FEN string `json:"fen"`

	// Depth is the search depth passed to "go depth".
	Depth int `json:"depth"`
}

// Result is the structured outcome of a search.
type Result struct {
	// Score is centipawns, or a mate-mapped value near ±30000.
	Score int `json:"score"`

	// Depth is the depth token of the last info line, verbatim.
	Depth *string `json:"depth,omitempty"`

	// ElapsedMs is the engine-reported search time.
	ElapsedMs *int `json:"elapsed_ms,omitempty"`

	// HashFullPermille is the transposition table fill ratio.
	HashFullPermille *int `json:"hashfull_permille,omitempty"`

	// TimedOut is set when the search had to be forced to stop.
	TimedOut bool `json:"timed_out"`

	// BestMove is the engine's move from the bestmove line, if any.
	BestMove string `json:"best_move,omitempty"`
}

// IsMate reports whether Score encodes a forced mate.
func (r Result) IsMate() bool {
	return r.Score >= uci.MateScore-1000 || r.Score <= -uci.MateScore+1000
}

// Summary renders the result compactly, e.g. "d18 cp 35" or "d22 mate+3 (timeout)".
func (r Result) Summary() string {
	var b strings.Builder
	if r.Depth != nil {
		fmt.Fprintf(&b, "d%s ", *r.Depth)
	}
	switch {
	case r.IsMate() && r.Score > 0:
		fmt.Fprintf(&b, "mate+%d", uci.MateScore-r.Score)
	case r.IsMate():
		fmt.Fprintf(&b, "mate-%d", uci.MateScore+r.Score)
	default:
		fmt.Fprintf(&b, "cp %d", r.Score)
	}
	if r.TimedOut {
		b.WriteString(" (timeout)")
	}
	return b.String()
}

// extractResult scans the buffered output of one search.
//
// Depth, hashfull and time come from the last info line carrying a depth;
// the score is the last one that parsed. Returns false when no line
// yielded a score.
func extractResult(buffer string) (Result, bool) {
	var (
		res      Result
		hasScore bool
	)
	for _, raw := range strings.Split(buffer, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if mv, ok := uci.ParseBestMove(line); ok {
			res.BestMove = mv
			continue
		}
		if !uci.IsDepthInfo(line) {
			continue
		}
		fields := uci.ParseInfoFields(line)
		res.Depth = fields.Depth
		res.HashFullPermille = fields.HashFull
		res.ElapsedMs = fields.TimeMs
		if score, ok := uci.ParseScore(line); ok {
			res.Score = score
			hasScore = true
		}
	}
	return res, hasScore
}
