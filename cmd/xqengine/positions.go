// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/AleutianAI/xqcoach/pkg/validation"
	"github.com/AleutianAI/xqcoach/services/engine/cache"
	"github.com/AleutianAI/xqcoach/services/engine/scan"
)

// parsePositions reads one position per line.
//
// A line is either "<id>\t<fen>" or a bare FEN, which gets the id
// "<prefix>-<ply>" with ply counting non-empty lines from zero. Blank lines
// and lines starting with # are skipped. Every FEN must pass
// validation.ValidateFEN.
func parsePositions(r io.Reader, prefix string) ([]scan.Position, error) {
	var out []scan.Position
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := sc.Text()
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var id, fen string
		if before, after, ok := strings.Cut(raw, "\t"); ok {
			id, fen = strings.TrimSpace(before), strings.TrimSpace(after)
		} else {
			id, fen = fmt.Sprintf("%s-%d", prefix, len(out)), line
		}
		if id == "" || fen == "" {
			return nil, fmt.Errorf("line %d: expected \"id<TAB>fen\" or a fen", lineNo)
		}
		fen, err := validation.SanitizeFEN(fen)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, scan.Position{ID: cache.PositionID(id), FEN: fen})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}
	return out, nil
}
