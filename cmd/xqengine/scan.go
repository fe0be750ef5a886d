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
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/xqcoach/pkg/ux"
	"github.com/AleutianAI/xqcoach/services/engine/scan"
)

var (
	scanProgressInterval time.Duration

	scanCmd = &cobra.Command{
		Use:   "scan <positions-file>",
		Short: "Evaluate every position of a game into the score cache",
		Long: `Evaluate every position listed in a file, one per line as "id<TAB>fen"
or a bare fen, skipping positions already cached for the configured engine
version. "-" reads standard input. Ctrl-C stops after the current position.`,
		Args: cobra.ExactArgs(1),
		RunE: runScan,
	}
)

func init() {
	scanCmd.Flags().DurationVar(&scanProgressInterval, "progress-interval", time.Second, "minimum time between progress lines")
}

func runScan(cmd *cobra.Command, args []string) error {
	positions, err := readPositionsFile(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	printer := newProgressPrinter(cmd.OutOrStdout(), scanProgressInterval)
	err = a.scanner.ScanGame(ctx, positions, a.scores, printer.report)

	var scanErr *scan.ScanError
	if errors.As(err, &scanErr) {
		printer.out.Error(fmt.Sprintf("failed at position %d (%s)", scanErr.Index, scanErr.PositionID))
	}
	return err
}

func readPositionsFile(stdin io.Reader, path string) ([]scan.Position, error) {
	if path == "-" {
		return parsePositions(stdin, "stdin")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open positions: %w", err)
	}
	defer f.Close()
	prefix := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return parsePositions(f, prefix)
}

// progressPrinter prints at most one intermediate line per interval and
// always prints the final one.
type progressPrinter struct {
	out       *ux.Printer
	sometimes *rate.Sometimes
}

func newProgressPrinter(out io.Writer, interval time.Duration) *progressPrinter {
	return &progressPrinter{
		out:       ux.NewPrinter(out),
		sometimes: &rate.Sometimes{First: 1, Interval: interval},
	}
}

func (p *progressPrinter) report(pr scan.Progress) {
	switch {
	case pr.IsCompleted && pr.Cancelled:
		p.out.Warning(formatProgress(pr))
	case pr.IsCompleted:
		p.out.Success(formatProgress(pr))
	default:
		p.sometimes.Do(func() {
			p.out.Progress(formatProgress(pr))
		})
	}
}

func formatProgress(pr scan.Progress) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d/%d] evaluated %d", pr.CurrentIndex, pr.Total, pr.EvaluatedCount)
	if pr.LastResultSummary != nil {
		fmt.Fprintf(&b, ", last %s", *pr.LastResultSummary)
	}
	if pr.ElapsedSeconds != nil {
		fmt.Fprintf(&b, ", %.1fs", *pr.ElapsedSeconds)
	}
	switch {
	case pr.IsCompleted && pr.Cancelled:
		b.WriteString(" (cancelled)")
	case pr.IsCompleted:
		b.WriteString(" (done)")
	}
	return b.String()
}
