// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks user-provided inputs before they reach the
// engine process.
//
// Positions are written verbatim into the engine's stdin, so anything that
// is not a well-formed board is rejected here rather than left for the
// engine to misread.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	boardRanks = 10
	boardFiles = 9
)

// rankPattern matches one rank: piece letters and empty-run digits.
// Both the letter set with c/h/e aliases and the UCI set are accepted.
var rankPattern = regexp.MustCompile(`^[rnbakcphRNBAKCPHeE1-9]{1,9}$`)

// ValidateFEN validates a position in internal notation.
//
// Valid positions:
//   - Board field of 10 ranks separated by "/"
//   - Each rank covers exactly 9 files
//   - Optional side-to-move field "r", "b" or "w"
//   - Any further fields are passed through unchecked
//
// Example:
//
//	if err := validation.ValidateFEN(fen); err != nil {
//	    return fmt.Errorf("line %d: %w", n, err)
//	}
func ValidateFEN(fen string) error {
	fields := strings.Fields(fen)
	if len(fields) == 0 {
		return fmt.Errorf("position cannot be empty")
	}

	ranks := strings.Split(fields[0], "/")
	if len(ranks) != boardRanks {
		return fmt.Errorf("invalid board %q: %d ranks, want %d", fields[0], len(ranks), boardRanks)
	}
	for i, rank := range ranks {
		if !rankPattern.MatchString(rank) {
			return fmt.Errorf("invalid board %q: rank %d %q has unknown characters", fields[0], i+1, rank)
		}
		if n := rankWidth(rank); n != boardFiles {
			return fmt.Errorf("invalid board %q: rank %d covers %d files, want %d", fields[0], i+1, n, boardFiles)
		}
	}

	if len(fields) > 1 {
		switch fields[1] {
		case "r", "b", "w":
		default:
			return fmt.Errorf("invalid side to move %q (must be r or b)", fields[1])
		}
	}
	return nil
}

// SanitizeFEN collapses whitespace and validates the result.
func SanitizeFEN(fen string) (string, error) {
	normalized := strings.Join(strings.Fields(fen), " ")
	if err := ValidateFEN(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

func rankWidth(rank string) int {
	n := 0
	for _, c := range rank {
		if c >= '1' && c <= '9' {
			n += int(c - '0')
			continue
		}
		n++
	}
	return n
}
