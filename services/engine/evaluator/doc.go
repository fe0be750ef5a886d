// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evaluator drives one engine evaluation end to end.
//
// A Coordinator owns the single-flight lock for a Supervisor. Each
// Evaluate call either runs a complete search or is turned away at once:
// there is no queue.
//
// # Outcomes
//
// Evaluate distinguishes four outcomes:
//
//	(*Result, nil)        the search produced a score
//	(nil, nil)            the search completed but reported no score
//	(nil, ErrBusy)        another search holds the engine; nothing was sent
//	(nil, other error)    startup or protocol failure
//
// ErrBusy is the only recoverable error. Callers that want to retry, such
// as the batch scanner, test for it with errors.Is.
//
// # Search Sequence
//
//	stop → clear → isready → await readyok → clear
//	position fen <fen> → go depth <n> → await bestmove
//	    on timeout: stop → await bestmove (short) → TimedOut = true
//
// The resync barrier guarantees that late output from an abandoned
// search is discarded before the next search's commands are written.
package evaluator
