// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evaluator

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("xqcoach.engine.evaluator")
	meter  = otel.Meter("xqcoach.engine.evaluator")
)

// Outcome labels for evaluation metrics.
const (
	outcomeScored       = "scored"
	outcomeTimedOut     = "timed_out"
	outcomeInconclusive = "inconclusive"
	outcomeBusy         = "busy"
	outcomeError        = "error"
)

var (
	evaluationLatency metric.Float64Histogram
	evaluationTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		evaluationLatency, err = meter.Float64Histogram(
			"engine_evaluation_duration_seconds",
			metric.WithDescription("Duration of engine evaluations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		evaluationTotal, err = meter.Int64Counter(
			"engine_evaluation_total",
			metric.WithDescription("Engine evaluations by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordEvaluation(ctx context.Context, outcome string, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	evaluationTotal.Add(ctx, 1, attrs)
	if outcome != outcomeBusy {
		evaluationLatency.Record(ctx, duration.Seconds(), attrs)
	}
}
