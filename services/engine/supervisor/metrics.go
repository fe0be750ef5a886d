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
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("xqcoach.engine.supervisor")
	meter  = otel.Meter("xqcoach.engine.supervisor")
)

var (
	engineSpawns  metric.Int64Counter
	engineStops   metric.Int64Counter
	awaitTimeouts metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		engineSpawns, err = meter.Int64Counter(
			"engine_spawns_total",
			metric.WithDescription("Total number of engine process starts"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		engineStops, err = meter.Int64Counter(
			"engine_stops_total",
			metric.WithDescription("Total number of engine process teardowns"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		awaitTimeouts, err = meter.Int64Counter(
			"engine_await_timeouts_total",
			metric.WithDescription("Bounded output waits that expired"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordSpawn(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	engineSpawns.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

func recordStop(ctx context.Context, killed bool) {
	if err := initMetrics(); err != nil {
		return
	}
	engineStops.Add(ctx, 1, metric.WithAttributes(attribute.Bool("killed", killed)))
}

func recordAwaitTimeout(ctx context.Context, substring string) {
	if err := initMetrics(); err != nil {
		return
	}
	awaitTimeouts.Add(ctx, 1, metric.WithAttributes(attribute.String("awaiting", substring)))
}
