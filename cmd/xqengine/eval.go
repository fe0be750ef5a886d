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
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/xqcoach/pkg/ux"
	"github.com/AleutianAI/xqcoach/pkg/validation"
	"github.com/AleutianAI/xqcoach/services/engine/evaluator"
)

var (
	evalDepth int
	evalJSON  bool

	evalCmd = &cobra.Command{
		Use:   "eval <fen>",
		Short: "Search one position and print the score",
		Long: `Search one position given in internal notation (side to move "r" or "b")
and print the score from the side to move's point of view.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runEval,
	}
)

func init() {
	evalCmd.Flags().IntVar(&evalDepth, "depth", 0, "search depth (default from config)")
	evalCmd.Flags().BoolVar(&evalJSON, "json", false, "print the full result as JSON")
}

func runEval(cmd *cobra.Command, args []string) error {
	// A FEN passed unquoted arrives split across arguments.
	fen, err := validation.SanitizeFEN(strings.Join(args, " "))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	depth := evalDepth
	if depth <= 0 {
		depth = a.cfg.Search.DefaultDepth
	}

	res, err := a.coord.Evaluate(ctx, evaluator.Request{FEN: fen, Depth: depth})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printer := ux.NewPrinter(out)
	if res == nil {
		printer.Warning("no score")
		return nil
	}
	if evalJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	line := res.Summary()
	if res.BestMove != "" {
		line += " bestmove " + res.BestMove
	}
	printer.Result(line)
	return nil
}
