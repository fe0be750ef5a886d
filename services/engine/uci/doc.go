// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package uci translates between the application's xiangqi position
// notation and the engine's UCI-style wire notation, and parses engine
// response lines into structured fields.
//
// The package is pure and holds no state. Every function is safe for
// concurrent use.
//
// # Wire Format
//
// The engine protocol has no message framing. Responses are free-text
// lines whose fields are delimited by keyword tokens:
//
//	info depth 18 seldepth 24 hashfull 312 time 1840 score cp 35 pv h2e2
//	info depth 22 score mate 3 pv ...
//	bestmove h2e2 ponder h9g7
//
// Fields are located by keyword and read from the token that follows,
// so unknown tokens between them are ignored.
package uci
