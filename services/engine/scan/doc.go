// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scan sweeps the positions of a game through the engine, filling
// a score cache.
//
// # Algorithm
//
// Positions are visited front to back with no engine reset in between, so
// the engine's hash table warms up across neighbouring positions:
//
//	for each position:
//	    cancelled?            -> stop advancing
//	    cached?               -> skip
//	    evaluate              -> busy: wait BusyBackoff, retry once, else skip
//	                          -> no score: skip
//	                          -> scored: cache.Put, count++
//	                          -> error: abort with *ScanError
//	    progress(done=false)
//	progress(done=true)
//
// Cancellation is checked only between positions. A search already
// running is never interrupted by it.
package scan
