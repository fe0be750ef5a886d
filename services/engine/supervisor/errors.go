// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package supervisor

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for engine process operations.
var (
	// ErrEngineNotFound indicates the engine executable or weights file is missing.
	ErrEngineNotFound = errors.New("engine not found")

	// ErrNotRunning indicates a command was issued with no process attached.
	ErrNotRunning = errors.New("engine not running")

	// ErrTimeout indicates a bounded wait did not observe the expected output.
	ErrTimeout = errors.New("engine response timeout")

	// ErrProcessExited indicates the engine closed its output mid-wait.
	ErrProcessExited = errors.New("engine process exited")

	// ErrAlreadyStarted indicates Start was called while a process is attached.
	ErrAlreadyStarted = errors.New("engine already started")

	// ErrHandshakeFailed indicates the uci/isready handshake did not complete.
	ErrHandshakeFailed = errors.New("engine handshake failed")
)

// TimeoutError is returned by AwaitLine when the timeout expires.
//
// Buffer holds everything accumulated up to the timeout. The caller owns
// it and may use it for diagnostics.
type TimeoutError struct {
	// Substring is what the wait was looking for.
	Substring string

	// Timeout is the bound that expired.
	Timeout time.Duration

	// Buffer is the accumulated output at expiry.
	Buffer string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%v: %q not seen within %v (%d bytes buffered)",
		ErrTimeout, e.Substring, e.Timeout, len(e.Buffer))
}

// Is makes errors.Is(err, ErrTimeout) match.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}
