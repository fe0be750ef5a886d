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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/xqcoach/pkg/logging"
	"github.com/AleutianAI/xqcoach/services/engine/cache"
	"github.com/AleutianAI/xqcoach/services/engine/cache/badgercache"
	"github.com/AleutianAI/xqcoach/services/engine/cache/sqlitecache"
	"github.com/AleutianAI/xqcoach/services/engine/config"
	"github.com/AleutianAI/xqcoach/services/engine/evaluator"
	"github.com/AleutianAI/xqcoach/services/engine/scan"
	"github.com/AleutianAI/xqcoach/services/engine/supervisor"
	"github.com/AleutianAI/xqcoach/services/engine/telemetry"
)

// --- Global flags ---
var (
	configPath string
	logLevel   string
	jsonLogs   bool

	// engineOptions is appended to the supervisor options; tests inject a
	// fake launcher here.
	engineOptions []supervisor.Option

	rootCmd = &cobra.Command{
		Use:           "xqengine",
		Short:         "Evaluate xiangqi positions with a local UCI engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.xqcoach/engine.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "log as JSON")

	rootCmd.AddCommand(evalCmd, scanCmd, serveCmd, mcpCmd)
}

// app holds everything a subcommand needs. close releases it in reverse
// order of construction.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	coord     *evaluator.Coordinator
	scanner   *scan.Scanner
	scores    cache.ScoreCache
	telemetry *telemetry.Providers

	closers []func() error
}

// newApp loads configuration and wires the engine stack.
func newApp(ctx context.Context, cmd *cobra.Command, withCache bool) (*app, error) {
	a := &app{}

	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(firstNonEmpty(logLevel, cfg.Logging.Level))
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "xqengine",
		JSON:    jsonLogs || cfg.Logging.JSON,
		Output:  cmd.ErrOrStderr(),
	})
	a.logger = logger.Install()
	a.closers = append(a.closers, logger.Close)

	telCfg, err := telemetry.FromPreset(cfg.Telemetry.Exporter, cfg.Telemetry.Endpoint)
	if err != nil {
		a.close()
		return nil, err
	}
	providers, err := telemetry.Init(ctx, telCfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.telemetry = providers
	a.closers = append(a.closers, func() error { return providers.Shutdown(context.Background()) })

	sup := supervisor.New(cfg.Supervisor(), cfg.Locator(), a.logger, engineOptions...)
	a.coord = evaluator.New(sup, cfg.Evaluator(), a.logger)
	a.closers = append(a.closers, a.coord.Close)
	a.scanner = scan.New(a.coord, cfg.Scanner(), a.logger)

	if withCache {
		scores, closer, err := openCache(cfg.Cache, a.logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.scores = scores
		if closer != nil {
			a.closers = append(a.closers, closer.Close)
		}
	}
	return a, nil
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openCache opens the configured score cache backend.
func openCache(cfg config.CacheConfig, logger *slog.Logger) (cache.ScoreCache, io.Closer, error) {
	switch cfg.Backend {
	case config.CacheMemory:
		return cache.NewMemory(), nil, nil
	case config.CacheBadger:
		bcfg := badgercache.DefaultConfig(cfg.Path)
		bcfg.Logger = logger
		store, err := badgercache.Open(bcfg)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.CacheSQLite:
		store, err := sqlitecache.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
