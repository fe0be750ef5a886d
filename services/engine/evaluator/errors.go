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
	"errors"

	"github.com/AleutianAI/xqcoach/services/engine/supervisor"
)

var (
	// ErrBusy indicates another search holds the engine. Recoverable.
	ErrBusy = errors.New("engine busy")

	// ErrEvaluationFailed indicates the search produced nothing usable even
	// after the forced stop.
	ErrEvaluationFailed = errors.New("evaluation failed")

	// ErrInvalidRequest indicates an empty position or non-positive depth.
	ErrInvalidRequest = errors.New("invalid evaluation request")
)

// Re-exported supervisor errors so callers need a single import.
var (
	ErrEngineNotFound = supervisor.ErrEngineNotFound
	ErrNotRunning     = supervisor.ErrNotRunning
	ErrTimeout        = supervisor.ErrTimeout
)
