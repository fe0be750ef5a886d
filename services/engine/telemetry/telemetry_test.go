// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestFromPreset(t *testing.T) {
	tests := []struct {
		preset     string
		wantTrace  string
		wantMetric string
	}{
		{ExporterNone, ExporterNone, ExporterNone},
		{ExporterPrometheus, ExporterNone, ExporterPrometheus},
		{ExporterStdout, ExporterStdout, ExporterStdout},
		{ExporterOTLP, ExporterOTLP, ExporterPrometheus},
	}
	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			cfg, err := FromPreset(tt.preset, "collector:4317")
			require.NoError(t, err)
			assert.Equal(t, tt.wantTrace, cfg.TraceExporter)
			assert.Equal(t, tt.wantMetric, cfg.MetricExporter)
		})
	}

	cfg, err := FromPreset(ExporterOTLP, "collector:4317")
	require.NoError(t, err)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)

	_, err = FromPreset("zipkin", "")
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_NilContext(t *testing.T) {
	//lint:ignore SA1012 exercising the nil guard
	_, err := Init(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_None(t *testing.T) {
	cfg, err := FromPreset(ExporterNone, "")
	require.NoError(t, err)

	p, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, p.MetricsHandler())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_PrometheusServesMetrics(t *testing.T) {
	p, err := Init(context.Background(), DefaultConfig())
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	counter, err := otel.Meter("telemetry-test").Int64Counter("telemetry_test_events_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	handler := p.MetricsHandler()
	require.NotNil(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "telemetry_test_events_total")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestInit_UnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricExporter = "graphite"
	_, err := Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)

	cfg = DefaultConfig()
	cfg.TraceExporter = "zipkin"
	_, err = Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestShutdown_Idempotent(t *testing.T) {
	p, err := Init(context.Background(), DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}
