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
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("xqcoach.engine.scan")
	meter  = otel.Meter("xqcoach.engine.scan")
)

// Per-position outcome labels.
const (
	outcomeCached       = "cached"
	outcomeEvaluated    = "evaluated"
	outcomeBusySkipped  = "busy_skipped"
	outcomeInconclusive = "inconclusive"
	outcomeFailed       = "failed"
)

var (
	positionsTotal metric.Int64Counter
	busyRetries    metric.Int64Counter
	scanDuration   metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		positionsTotal, err = meter.Int64Counter(
			"engine_scan_positions_total",
			metric.WithDescription("Scanned positions by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		busyRetries, err = meter.Int64Counter(
			"engine_scan_busy_retries_total",
			metric.WithDescription("Retries after the engine reported busy"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		scanDuration, err = meter.Float64Histogram(
			"engine_scan_duration_seconds",
			metric.WithDescription("Duration of whole-game scans"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordPosition(ctx context.Context, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	positionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func recordBusyRetry(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	busyRetries.Add(ctx, 1)
}

func recordScan(ctx context.Context, duration time.Duration, cancelled bool, failed bool) {
	if err := initMetrics(); err != nil {
		return
	}
	scanDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.Bool("cancelled", cancelled),
		attribute.Bool("failed", failed),
	))
}
