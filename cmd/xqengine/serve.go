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
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/xqcoach/services/engine/api"
	"github.com/AleutianAI/xqcoach/services/engine/supervisor"
)

var (
	servePort   int
	serveWarmup bool
	serveDebug  bool
	serveWatch  bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine over HTTP for the desktop application",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
)

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config)")
	serveCmd.Flags().BoolVar(&serveWarmup, "warmup", true, "start the engine before accepting requests")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "gin debug mode and request logging")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "restart the engine when its executable or weights change")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	if serveDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if serveWarmup {
		if err := a.coord.Warmup(ctx); err != nil {
			// The first request retries startup.
			a.logger.Warn("engine warmup failed", slog.String("error", err.Error()))
		}
	}

	handlers := api.NewHandlers(a.coord, a.scanner, a.scores, a.cfg.Search.DefaultDepth, a.logger)
	var middleware []gin.HandlerFunc
	if serveDebug {
		middleware = append(middleware, gin.Logger())
	}
	router := api.NewRouter("xqengine", handlers, a.telemetry.MetricsHandler(), middleware...)

	addr := a.cfg.Addr()
	if servePort > 0 {
		addr = net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(servePort))
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if serveWatch {
		watcher, err := supervisor.NewResourceWatcher(a.cfg.Locator(), 0, a.coord.Restart, a.logger)
		if err != nil {
			a.logger.Warn("engine resource watcher disabled", slog.String("error", err.Error()))
		} else {
			defer watcher.Close()
			g.Go(func() error {
				watcher.Run(gctx)
				return nil
			})
		}
	}
	g.Go(func() error {
		a.logger.Info("starting engine server", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down engine server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
