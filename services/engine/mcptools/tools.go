// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mcptools exposes the engine as Model Context Protocol tools so an
// assistant can request evaluations over stdio.
//
// Each tool is a struct with its dependencies injected via constructor,
// a Definition returning the mcp.Tool schema and a Handle method. Engine
// failures are reported as tool errors, not protocol errors.
package mcptools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/AleutianAI/xqcoach/pkg/validation"
	"github.com/AleutianAI/xqcoach/services/engine/evaluator"
	"github.com/AleutianAI/xqcoach/services/engine/supervisor"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// Evaluator is the coordinator surface the tools need.
type Evaluator interface {
	Evaluate(ctx context.Context, req evaluator.Request) (*evaluator.Result, error)
	IsBusy() bool
	State() supervisor.State
}

// NewServer registers every engine tool on a new MCP server.
func NewServer(eval Evaluator, defaultDepth int) *server.MCPServer {
	s := server.NewMCPServer(
		"xqengine",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("Evaluate xiangqi positions with a local engine. "+
			"Positions use FEN with side to move r (red) or b (black). "+
			"Scores are centipawns from the side to move's point of view."),
	)

	evalTool := NewEvaluateTool(eval, defaultDepth)
	s.AddTool(evalTool.Definition(), evalTool.Handle)

	statusTool := NewStatusTool(eval)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	return s
}

// EvaluateTool runs one search.
type EvaluateTool struct {
	eval         Evaluator
	defaultDepth int
}

// NewEvaluateTool creates the engine_evaluate tool.
func NewEvaluateTool(eval Evaluator, defaultDepth int) *EvaluateTool {
	return &EvaluateTool{eval: eval, defaultDepth: defaultDepth}
}

// Definition returns the tool schema.
func (t *EvaluateTool) Definition() mcp.Tool {
	return mcp.NewTool("engine_evaluate",
		mcp.WithDescription("Search one xiangqi position and return its score, best move and search depth."),
		mcp.WithString("fen",
			mcp.Required(),
			mcp.Description("Position in FEN, side to move r or b"),
		),
		mcp.WithNumber("depth",
			mcp.Description(fmt.Sprintf("Search depth in plies (default: %d)", t.defaultDepth)),
		),
	)
}

// Handle processes the engine_evaluate tool call.
func (t *EvaluateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fen, err := validation.SanitizeFEN(req.GetString("fen", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	depth := intArg(req, "depth", t.defaultDepth)
	if depth <= 0 {
		return mcp.NewToolResultError("'depth' must be positive"), nil
	}

	res, err := t.eval.Evaluate(ctx, evaluator.Request{FEN: fen, Depth: depth})
	switch {
	case errors.Is(err, evaluator.ErrBusy):
		return mcp.NewToolResultError("engine is busy with another search, try again shortly"), nil
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("evaluation failed: %v", err)), nil
	case res == nil:
		return mcp.NewToolResultText("The engine finished without reporting a score."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Score: %s\n", res.Summary())
	if res.BestMove != "" {
		fmt.Fprintf(&b, "Best move: %s\n", res.BestMove)
	}
	if res.ElapsedMs != nil {
		fmt.Fprintf(&b, "Time: %d ms\n", *res.ElapsedMs)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// StatusTool reports the engine lifecycle state.
type StatusTool struct {
	eval Evaluator
}

// NewStatusTool creates the engine_status tool.
func NewStatusTool(eval Evaluator) *StatusTool {
	return &StatusTool{eval: eval}
}

// Definition returns the tool schema.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("engine_status",
		mcp.WithDescription("Report whether the engine is running and whether a search is in flight."),
	)
}

// Handle processes the engine_status tool call.
func (t *StatusTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(fmt.Sprintf("State: %s\nBusy: %t\n", t.eval.State(), t.eval.IsBusy())), nil
}

// intArg extracts an integer argument, returning defaultVal if the key is
// missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}
