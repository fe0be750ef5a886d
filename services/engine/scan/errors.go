// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scan

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/xqcoach/services/engine/cache"
)

// ErrInvalidPosition indicates a position with an empty ID or FEN.
var ErrInvalidPosition = errors.New("invalid scan position")

// ScanError reports the position at which a scan aborted.
type ScanError struct {
	// Index is the zero-based index of the failing position.
	Index int

	// PositionID identifies the failing position.
	PositionID cache.PositionID

	// Err is the underlying error.
	Err error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan aborted at position %d (%s): %v", e.Index, e.PositionID, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}
