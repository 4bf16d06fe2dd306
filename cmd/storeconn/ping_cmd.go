// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	xglog "github.com/ManuGH/storeconn/internal/log"
	"golang.org/x/sync/errgroup"
)

type pingResult struct {
	name    string
	latency time.Duration
	err     error
}

func runPingCLI(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ping", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	timeout := fs.Duration("timeout", 5*time.Second, "per-connection ping timeout")

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

	handles, err := openHandles(newFactory(nil), cfg, names)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer closeHandles(handles)

	results := pingAll(context.Background(), handles, *timeout)

	logger := xglog.WithComponent("ping")
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			logger.Warn().Err(r.err).Str(xglog.FieldConnectionName, r.name).Msg("ping failed")
			fmt.Fprintf(stdout, "%-20s FAIL  %v\n", r.name, r.err)
			continue
		}
		fmt.Fprintf(stdout, "%-20s OK    %s\n", r.name, r.latency.Round(time.Microsecond))
	}
	if failed > 0 {
		return 1
	}
	return 0
}

// pingAll pings every handle concurrently. Results keep the input order.
func pingAll(ctx context.Context, handles []namedHandle, timeout time.Duration) []pingResult {
	results := make([]pingResult, len(handles))
	var g errgroup.Group
	for i, h := range handles {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			err := h.handle.Ping(ctx).Err()
			results[i] = pingResult{name: h.name, latency: time.Since(start), err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
