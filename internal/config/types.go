// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/storeconn/internal/redisconn"
)

// FileConfig is the on-disk YAML shape. Unknown keys are rejected.
type FileConfig struct {
	LogLevel    string                     `yaml:"logLevel,omitempty"`
	LogService  string                     `yaml:"logService,omitempty"`
	MetricsAddr string                     `yaml:"metricsAddr,omitempty"`
	Telemetry   *TelemetryConfig           `yaml:"telemetry,omitempty"`
	Connections map[string]RedisConnection `yaml:"connections,omitempty"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter,omitempty"`
	Endpoint     string  `yaml:"endpoint,omitempty"`
	Environment  string  `yaml:"environment,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty"`
}

// RedisConnection is one named connection as written in YAML.
type RedisConnection struct {
	Host        string              `yaml:"host,omitempty"`
	Port        int                 `yaml:"port,omitempty"`
	Username    string              `yaml:"username,omitempty"`
	Password    string              `yaml:"password,omitempty"`
	TLSDisabled bool                `yaml:"tlsDisabled,omitempty"`
	ClusterMode bool                `yaml:"clusterMode,omitempty"`
	KeyPrefix   string              `yaml:"keyPrefix,omitempty"`
	Cluster     *RedisClusterConfig `yaml:"cluster,omitempty"`
}

// RedisClusterConfig holds cluster-wide settings. Per-node identity and
// credentials live on RedisConnection and cannot be set here.
type RedisClusterConfig struct {
	ScaleReads     string        `yaml:"scaleReads,omitempty"`
	MaxRedirects   int           `yaml:"maxRedirects,omitempty"`
	RouteByLatency bool          `yaml:"routeByLatency,omitempty"`
	DialTimeout    time.Duration `yaml:"dialTimeout,omitempty"`
	ReadTimeout    time.Duration `yaml:"readTimeout,omitempty"`
	WriteTimeout   time.Duration `yaml:"writeTimeout,omitempty"`
}

// AppConfig is the effective configuration after defaults, file and env.
type AppConfig struct {
	Version     string
	LogLevel    string
	LogService  string
	MetricsAddr string
	Telemetry   TelemetryConfig
	Connections map[string]RedisConnection
}

// Connection returns the named connection translated for the factory.
func (c *AppConfig) Connection(name string) (redisconn.Config, error) {
	rc, ok := c.Connections[name]
	if !ok {
		return redisconn.Config{}, &ConnectionError{Name: name}
	}
	return rc.FactoryConfig(), nil
}

// FactoryConfig converts the YAML shape into redisconn.Config. Values are
// passed through without validation.
func (rc RedisConnection) FactoryConfig() redisconn.Config {
	cfg := redisconn.Config{
		Host:        rc.Host,
		Port:        rc.Port,
		Username:    rc.Username,
		Password:    rc.Password,
		TLSDisabled: rc.TLSDisabled,
		ClusterMode: rc.ClusterMode,
		KeyPrefix:   rc.KeyPrefix,
	}
	if rc.Cluster != nil {
		cfg.ClusterOptions = &redisconn.ClusterOptions{
			ScaleReads:     redisconn.ScaleReads(rc.Cluster.ScaleReads),
			MaxRedirects:   rc.Cluster.MaxRedirects,
			RouteByLatency: rc.Cluster.RouteByLatency,
			DialTimeout:    rc.Cluster.DialTimeout,
			ReadTimeout:    rc.Cluster.ReadTimeout,
			WriteTimeout:   rc.Cluster.WriteTimeout,
		}
	}
	return cfg
}
