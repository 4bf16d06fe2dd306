// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ManuGH/storeconn/internal/config"
	"github.com/ManuGH/storeconn/internal/health"
	xglog "github.com/ManuGH/storeconn/internal/log"
	"github.com/ManuGH/storeconn/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultServeAddr = ":9121"
	probeRateLimit   = 120
	probeRateWindow  = time.Minute
	shutdownTimeout  = 10 * time.Second
)

func runServeCLI(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	addr := fs.String("listen", "", "listen address (default: metricsAddr from config, else "+defaultServeAddr+")")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(common.configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	names, err := selectConnections(cfg, common.connections)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := xglog.WithComponent("serve")

	provider, tp, err := startTelemetry(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error starting telemetry: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	handles, err := openHandles(newFactory(tp), cfg, names)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer closeHandles(handles)

	listen := *addr
	if listen == "" {
		listen = cfg.MetricsAddr
	}
	if listen == "" {
		listen = defaultServeAddr
	}

	srv := &http.Server{
		Addr:              listen,
		Handler:           withTracing(newRouter(newHealthManager(handles)), tp),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := config.NewLoader(common.configPath, version.Version).Watch(ctx, func(next *config.AppConfig) {
			xglog.Configure(xglog.Config{
				Level:   next.LogLevel,
				Output:  stderr,
				Service: next.LogService,
				Version: next.Version,
			})
		})
		if err != nil {
			logger.Warn().Err(err).Msg("config watch stopped")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str(xglog.FieldAddr, listen).
			Int("connections", len(handles)).
			Msg("serving health and metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
		return 1
	}
	logger.Info().Msg("server stopped")
	return 0
}

func newHealthManager(handles []namedHandle) *health.Manager {
	m := health.NewManager(version.Version)
	for _, h := range handles {
		m.RegisterChecker(health.NewRedisChecker(h.name, h.handle))
	}
	return m
}

// newRouter mounts the probe endpoints behind a per-IP rate limit.
func newRouter(m *health.Manager) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httprate.Limit(
		probeRateLimit,
		probeRateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(probeRateWindow.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded"}`))
		}),
	))

	r.Get("/healthz", m.ServeHealth)
	r.Get("/readyz", m.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// withTracing wraps h in server spans. Scrapes of /metrics are not traced.
func withTracing(h http.Handler, tp trace.TracerProvider) http.Handler {
	if tp == nil {
		return h
	}
	return otelhttp.NewHandler(h, "storeconn",
		otelhttp.WithTracerProvider(tp),
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/metrics"
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
