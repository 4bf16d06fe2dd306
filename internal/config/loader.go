// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads storeconn configuration with precedence ENV > file > defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultLogLevel   = "info"
	defaultLogService = "storeconn"

	// EnvConnections lists extra connection names, comma separated, that
	// exist only in the environment.
	EnvConnections = "STORECONN_CONNECTIONS"
)

// Loader builds an AppConfig from an optional YAML file and the environment.
type Loader struct {
	path    string
	version string
}

// NewLoader returns a loader for path. An empty path skips the file layer.
func NewLoader(path, version string) *Loader {
	return &Loader{path: path, version: version}
}

// Load applies defaults, then the file, then environment overrides.
func (l *Loader) Load() (*AppConfig, error) {
	cfg := &AppConfig{
		Version:     l.version,
		LogLevel:    defaultLogLevel,
		LogService:  defaultLogService,
		Telemetry:   TelemetryConfig{Exporter: "grpc", SamplingRate: 1.0},
		Connections: map[string]RedisConnection{},
	}

	if l.path != "" {
		fileCfg, err := l.loadFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("load config file %s: %w", l.path, err)
		}
		mergeFileConfig(cfg, fileCfg)
	}

	mergeEnvConfig(cfg)
	if err := checkEnvPrefixes(cfg.Connections); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFileConfig loads a YAML config file without applying defaults or env overrides.
func LoadFileConfig(path string) (*FileConfig, error) {
	return NewLoader(path, "").loadFile(path)
}

func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

func mergeFileConfig(dst *AppConfig, src *FileConfig) {
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.LogService != "" {
		dst.LogService = src.LogService
	}
	if src.MetricsAddr != "" {
		dst.MetricsAddr = src.MetricsAddr
	}
	if t := src.Telemetry; t != nil {
		dst.Telemetry.Enabled = t.Enabled
		if t.Exporter != "" {
			dst.Telemetry.Exporter = t.Exporter
		}
		if t.Endpoint != "" {
			dst.Telemetry.Endpoint = t.Endpoint
		}
		if t.Environment != "" {
			dst.Telemetry.Environment = t.Environment
		}
		if t.SamplingRate != 0 {
			dst.Telemetry.SamplingRate = t.SamplingRate
		}
	}
	for name, conn := range src.Connections {
		dst.Connections[name] = conn
	}
}

func mergeEnvConfig(dst *AppConfig) {
	dst.LogLevel = ParseString("STORECONN_LOG_LEVEL", dst.LogLevel)
	dst.LogService = ParseString("STORECONN_LOG_SERVICE", dst.LogService)
	dst.MetricsAddr = ParseString("STORECONN_METRICS_ADDR", dst.MetricsAddr)

	dst.Telemetry.Enabled = ParseBool("STORECONN_TELEMETRY_ENABLED", dst.Telemetry.Enabled)
	dst.Telemetry.Exporter = ParseString("STORECONN_TELEMETRY_EXPORTER", dst.Telemetry.Exporter)
	dst.Telemetry.Endpoint = ParseString("STORECONN_TELEMETRY_ENDPOINT", dst.Telemetry.Endpoint)
	dst.Telemetry.Environment = ParseString("STORECONN_TELEMETRY_ENVIRONMENT", dst.Telemetry.Environment)
	dst.Telemetry.SamplingRate = ParseFloat("STORECONN_TELEMETRY_SAMPLING_RATE", dst.Telemetry.SamplingRate)

	for _, name := range strings.Split(os.Getenv(EnvConnections), ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := dst.Connections[name]; !ok {
			dst.Connections[name] = RedisConnection{}
		}
	}

	for name, conn := range dst.Connections {
		dst.Connections[name] = mergeConnectionEnv(name, conn)
	}
}

// ConnectionEnvPrefix returns the environment prefix for a connection, e.g.
// "CACHE_REDIS_" for "cache" and "JOB_QUEUE_REDIS_" for "job-queue". Names
// that differ only in non-alphanumerics or case map to the same prefix, and
// Load rejects configurations that contain both.
func ConnectionEnvPrefix(name string) string {
	upper := strings.ToUpper(name)
	upper = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
	return upper + "_REDIS_"
}

// checkEnvPrefixes fails when two connections share an environment prefix,
// since one set of variables would silently override both.
func checkEnvPrefixes(conns map[string]RedisConnection) error {
	names := make([]string, 0, len(conns))
	for name := range conns {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := make(map[string]string, len(names))
	for _, name := range names {
		p := ConnectionEnvPrefix(name)
		if other, ok := seen[p]; ok {
			return &EnvPrefixError{Prefix: p, Names: [2]string{other, name}}
		}
		seen[p] = name
	}
	return nil
}

func mergeConnectionEnv(name string, conn RedisConnection) RedisConnection {
	p := ConnectionEnvPrefix(name)

	conn.Host = ParseString(p+"HOST", conn.Host)
	conn.Port = ParseInt(p+"PORT", conn.Port)
	conn.Username = ParseString(p+"USERNAME", conn.Username)
	conn.Password = ParseString(p+"PASSWORD", conn.Password)
	conn.TLSDisabled = ParseBool(p+"TLS_DISABLED", conn.TLSDisabled)
	conn.ClusterMode = ParseBool(p+"CLUSTER_MODE", conn.ClusterMode)
	conn.KeyPrefix = ParseString(p+"KEY_PREFIX", conn.KeyPrefix)

	scaleReads := ""
	if conn.Cluster != nil {
		scaleReads = conn.Cluster.ScaleReads
	}
	if v := ParseString(p+"CLUSTER_SCALE_READS", scaleReads); v != scaleReads {
		cluster := RedisClusterConfig{}
		if conn.Cluster != nil {
			cluster = *conn.Cluster
		}
		cluster.ScaleReads = v
		conn.Cluster = &cluster
	}
	return conn
}

// ConnectionNames returns configured connection names in sorted order.
func (c *AppConfig) ConnectionNames() []string {
	names := make([]string, 0, len(c.Connections))
	for name := range c.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
