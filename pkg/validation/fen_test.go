// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"testing"
)

const startBoard = "rnbakabnr/9/1c5c1/p1p1p1p1p/9/9/P1P1P1P1P/1C5C1/9/RNBAKABNR"

func TestValidateFEN(t *testing.T) {
	tests := []struct {
		name    string
		fen     string
		wantErr bool
	}{
		// Valid positions
		{"start red", startBoard + " r", false},
		{"start black", startBoard + " b", false},
		{"board only", startBoard, false},
		{"wire side", startBoard + " w - - 0 1", false},
		{"full tail", startBoard + " r - - 3 12", false},
		{"bare kings", "4k4/9/9/9/9/9/9/9/9/4K4 r", false},
		{"horse and elephant aliases", "rheakaehr/9/1c5c1/p1p1p1p1p/9/9/P1P1P1P1P/1C5C1/9/RHEAKAEHR r", false},

		// Invalid positions
		{"empty", "", true},
		{"whitespace", "   ", true},
		{"nine ranks", "9/9/9/9/9/9/9/9/4K4 r", true},
		{"eight file rank", "4k3/9/9/9/9/9/9/9/9/4K4 r", true},
		{"ten file rank", "4k5/9/9/9/9/9/9/9/9/4K4 r", true},
		{"unknown piece", "4q4/9/9/9/9/9/9/9/9/4K4 r", true},
		{"zero digit", "0k8/9/9/9/9/9/9/9/9/4K4 r", true},
		{"empty rank", "4k4//9/9/9/9/9/9/9/4K4 r", true},
		{"bad side", startBoard + " x", true},
		{"newline injection", startBoard + "\nquit", true},
		{"command injection", "quit", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFEN(tt.fen)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFEN(%q) error = %v, wantErr %v", tt.fen, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeFEN(t *testing.T) {
	got, err := SanitizeFEN("  " + startBoard + "   r  ")
	if err != nil {
		t.Fatalf("SanitizeFEN() error = %v", err)
	}
	if want := startBoard + " r"; got != want {
		t.Errorf("SanitizeFEN() = %q, want %q", got, want)
	}

	if _, err := SanitizeFEN("9/9 r"); err == nil {
		t.Error("SanitizeFEN() expected error for short board")
	}
}
