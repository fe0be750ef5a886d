// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package uci

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// COMMANDS AND RESPONSE KEYWORDS
// =============================================================================

// Outbound commands.
const (
	CmdUCI     = "uci"
	CmdIsReady = "isready"
	CmdStop    = "stop"
	CmdQuit    = "quit"
)

// Inbound substrings the client waits for.
const (
	RespUCIOK    = "uciok"
	RespReadyOK  = "readyok"
	RespBestMove = "bestmove"
)

// Option names sent during startup.
const (
	OptionEvalFile = "EvalFile"
	OptionThreads  = "Threads"
	OptionHash     = "Hash"
)

// Info line keywords.
const (
	keywordInfo     = "info"
	keywordDepth    = "depth"
	keywordHashFull = "hashfull"
	keywordTime     = "time"
	keywordScore    = "score"
	scoreCentipawn  = "cp"
	scoreMate       = "mate"
)

// MateScore is the magnitude a forced mate maps to before subtracting the
// mate distance. It dominates every realistic centipawn score.
const MateScore = 30000

// placeholderTail fills the castling, en-passant, halfmove and fullmove
// fields the wire format requires but xiangqi has no use for.
var placeholderTail = []string{"-", "-", "0", "1"}

// =============================================================================
// POSITION NOTATION
// =============================================================================

// ToEngineNotation rewrites an internal position string into the engine's
// notation.
//
// The side-to-move field uses red/black ("r"/"b") internally and
// white/black ("w"/"b") on the wire. Positions with fewer than six fields
// are padded with placeholder fields; positions with six or more keep
// every field except side-to-move verbatim.
//
// Examples:
//
//	ToEngineNotation("rnbakabnr/9/... r")           // "rnbakabnr/9/... w - - 0 1"
//	ToEngineNotation("rnbakabnr/9/... b - - 3 12")  // unchanged
func ToEngineNotation(internalFEN string) string {
	fields := strings.Fields(internalFEN)
	if len(fields) == 0 {
		return ""
	}

	if len(fields) == 1 {
		fields = append(fields, "w")
	} else {
		fields[1] = engineSideToMove(fields[1])
	}

	if len(fields) < 6 {
		missing := 6 - len(fields)
		fields = append(fields, placeholderTail[len(placeholderTail)-missing:]...)
	}

	return strings.Join(fields, " ")
}

func engineSideToMove(side string) string {
	switch side {
	case "r":
		return "w"
	case "b":
		return "b"
	default:
		return side
	}
}

// =============================================================================
// RESPONSE PARSING
// =============================================================================

// InfoFields holds the optional values extracted from an info line.
// A nil field means the keyword was absent or unreadable.
type InfoFields struct {
	Depth    *string
	HashFull *int
	TimeMs   *int
}

// ParseScore extracts the score from an info line.
//
// "score cp N" yields N. "score mate N" yields MateScore-N for N > 0 and
// -MateScore-N otherwise, so shorter mates have larger magnitudes.
// Returns false if the line has no score token or the following tokens
// do not parse.
func ParseScore(line string) (int, bool) {
	tokens := strings.Fields(line)
	for i, tok := range tokens {
		if tok != keywordScore {
			continue
		}
		if i+2 >= len(tokens) {
			return 0, false
		}
		value, err := strconv.Atoi(tokens[i+2])
		if err != nil {
			return 0, false
		}
		switch tokens[i+1] {
		case scoreCentipawn:
			return value, true
		case scoreMate:
			return MateValue(value), true
		default:
			return 0, false
		}
	}
	return 0, false
}

// MateValue maps a signed mate distance to an integer score.
func MateValue(moves int) int {
	if moves > 0 {
		return MateScore - moves
	}
	return -MateScore - moves
}

// ParseInfoFields extracts depth, hashfull and time from an info line.
// Each field is independent; a missing keyword leaves its field nil.
func ParseInfoFields(line string) InfoFields {
	tokens := strings.Fields(line)

	var fields InfoFields
	if v, ok := tokenAfter(tokens, keywordDepth); ok {
		fields.Depth = &v
	}
	if v, ok := intAfter(tokens, keywordHashFull); ok {
		fields.HashFull = &v
	}
	if v, ok := intAfter(tokens, keywordTime); ok {
		fields.TimeMs = &v
	}
	return fields
}

// IsDepthInfo reports whether line is an info line carrying a depth.
func IsDepthInfo(line string) bool {
	return strings.Contains(line, keywordInfo) && strings.Contains(line, keywordDepth)
}

// ParseBestMove extracts the move from a "bestmove" line.
func ParseBestMove(line string) (string, bool) {
	tokens := strings.Fields(line)
	return tokenAfter(tokens, RespBestMove)
}

func tokenAfter(tokens []string, keyword string) (string, bool) {
	for i, tok := range tokens {
		if tok == keyword && i+1 < len(tokens) {
			return tokens[i+1], true
		}
	}
	return "", false
}

func intAfter(tokens []string, keyword string) (int, bool) {
	raw, ok := tokenAfter(tokens, keyword)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// =============================================================================
// COMMAND BUILDERS
// =============================================================================

// SetOptionCommand builds "setoption name <name> value <value>".
func SetOptionCommand(name string, value any) string {
	return fmt.Sprintf("setoption name %s value %v", name, value)
}

// PositionCommand builds "position fen <fen>" from an internal position.
func PositionCommand(internalFEN string) string {
	return "position fen " + ToEngineNotation(internalFEN)
}

// GoDepthCommand builds "go depth <n>".
func GoDepthCommand(depth int) string {
	return fmt.Sprintf("go depth %d", depth)
}
