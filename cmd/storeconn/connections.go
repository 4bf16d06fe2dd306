// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/ManuGH/storeconn/internal/config"
	xglog "github.com/ManuGH/storeconn/internal/log"
	"github.com/ManuGH/storeconn/internal/metrics"
	"github.com/ManuGH/storeconn/internal/redisconn"
	"github.com/ManuGH/storeconn/internal/version"
	"go.opentelemetry.io/otel/trace"
)

// commonFlags are shared by every subcommand that opens connections.
type commonFlags struct {
	configPath  string
	connections string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "path to config file (YAML)")
	fs.StringVar(&c.connections, "connection", "", "comma separated connection names (default: all)")
}

// loadConfig loads configuration and reconfigures the global logger from it.
func loadConfig(path string, logOutput io.Writer) (*config.AppConfig, error) {
	cfg, err := config.NewLoader(strings.TrimSpace(path), version.Version).Load()
	if err != nil {
		return nil, err
	}
	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Output:  logOutput,
		Service: cfg.LogService,
		Version: cfg.Version,
	})
	return cfg, nil
}

// selectConnections resolves the -connection flag against the configuration.
func selectConnections(cfg *config.AppConfig, flagValue string) ([]string, error) {
	if strings.TrimSpace(flagValue) == "" {
		names := cfg.ConnectionNames()
		if len(names) == 0 {
			return nil, fmt.Errorf("no connections configured")
		}
		return names, nil
	}

	var names []string
	for _, name := range strings.Split(flagValue, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := cfg.Connection(name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// newFactory wires metrics and, when tp is non-nil, tracing into every handle.
func newFactory(tp trace.TracerProvider) *redisconn.Factory {
	hooks := []redisconn.HookFunc{metrics.NewRedisHook}
	if tp != nil {
		hooks = append(hooks, telemetryHook(tp))
	}
	return redisconn.NewFactory(redisconn.WithHooks(hooks...))
}

type namedHandle struct {
	name   string
	handle redisconn.Handle
}

func openHandles(f *redisconn.Factory, cfg *config.AppConfig, names []string) ([]namedHandle, error) {
	out := make([]namedHandle, 0, len(names))
	for _, name := range names {
		connCfg, err := cfg.Connection(name)
		if err != nil {
			closeHandles(out)
			return nil, err
		}
		out = append(out, namedHandle{name: name, handle: f.Create(name, connCfg)})
	}
	return out, nil
}

func closeHandles(handles []namedHandle) {
	for _, h := range handles {
		_ = h.handle.Close()
	}
}
