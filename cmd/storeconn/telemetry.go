// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"

	"github.com/ManuGH/storeconn/internal/config"
	"github.com/ManuGH/storeconn/internal/redisconn"
	"github.com/ManuGH/storeconn/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

func telemetryHook(tp trace.TracerProvider) redisconn.HookFunc {
	return telemetry.RedisHook(tp)
}

// startTelemetry returns a nil TracerProvider when tracing is disabled.
func startTelemetry(ctx context.Context, cfg *config.AppConfig) (*telemetry.Provider, trace.TracerProvider, error) {
	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Telemetry.Enabled {
		return provider, nil, nil
	}
	return provider, provider.TracerProvider(), nil
}
