// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package redisconn builds Redis client handles from declarative configuration.
//
// A single Create call hides whether the target is a standalone server or a
// cluster. The factory performs no I/O and no validation: go-redis dials
// lazily, so DNS, auth, TLS and cluster errors all surface from the returned
// handle when it is first used.
package redisconn

import (
	"crypto/tls"
	"net"
	"strconv"

	"github.com/ManuGH/storeconn/internal/log"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// autoPipelining is not configurable.
const autoPipelining = true

// HookFunc builds a per-connection hook. Returning nil skips the hook.
type HookFunc func(connectionName string) redis.Hook

// Factory creates handles. It keeps no reference to the handles it returns.
type Factory struct {
	logger zerolog.Logger
	hooks  []HookFunc
}

// Option configures a Factory.
type Option func(*Factory)

// WithLogger overrides the logger used for the creation record.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithHooks installs instrumentation hooks on every handle, outermost first.
func WithHooks(hooks ...HookFunc) Option {
	return func(f *Factory) {
		f.hooks = append(f.hooks, hooks...)
	}
}

// NewFactory returns a Factory logging under the "redisconn" component.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{logger: log.WithComponent("redisconn")}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create is shorthand for NewFactory().Create.
func Create(connectionName string, cfg Config) Handle {
	return NewFactory().Create(connectionName, cfg)
}

// Create returns a *ClusterHandle when cfg.ClusterMode is set and a
// *StandaloneHandle otherwise.
func (f *Factory) Create(connectionName string, cfg Config) Handle {
	if cfg.ClusterMode {
		f.logCreate("creating redis cluster client", connectionName, cfg)
		return f.newCluster(connectionName, cfg)
	}
	f.logCreate("creating redis client", connectionName, cfg)
	return f.newStandalone(connectionName, cfg)
}

func (f *Factory) logCreate(msg, connectionName string, cfg Config) {
	ev := f.logger.Debug().Str(log.FieldConnectionName, connectionName)
	if cfg.Host != "" {
		ev = ev.Str(log.FieldHost, cfg.Host)
	}
	if cfg.Port != 0 {
		ev = ev.Int(log.FieldPort, cfg.Port)
	}
	ev.Msg(msg)
}

func (f *Factory) newStandalone(connectionName string, cfg Config) *StandaloneHandle {
	opts := &redis.Options{
		Addr:       joinAddr(cfg.Host, cfg.Port),
		ClientName: connectionName,
		Username:   cfg.Username,
		Password:   cfg.Password,
	}
	if !cfg.TLSDisabled {
		opts.TLSConfig = defaultTLSConfig()
	}

	client := redis.NewClient(opts)
	batcher := f.installHooks(client, connectionName, "", nil)

	return &StandaloneHandle{
		Client:     client,
		batcher:    batcher,
		name:       connectionName,
		node:       Node{Host: cfg.Host, Port: cfg.Port},
		tls:        !cfg.TLSDisabled,
		pipelining: autoPipelining,
	}
}

func (f *Factory) newCluster(connectionName string, cfg Config) *ClusterHandle {
	seeds := []Node{{Host: cfg.Host, Port: cfg.Port}}

	node := NodeOptions{
		ConnectionName: connectionName,
		KeyPrefix:      cfg.KeyPrefix,
		Username:       cfg.Username,
		Password:       cfg.Password,
		AutoPipelining: autoPipelining,
	}
	if !cfg.TLSDisabled {
		node.TLS = defaultTLSConfig()
	}
	merged := mergeClusterOptions(cfg.ClusterOptions, node)

	client := redis.NewClusterClient(clusterClientOptions(seeds, merged))
	batcher := f.installHooks(client, connectionName, merged.NodeOptions.KeyPrefix, client.Command)

	return &ClusterHandle{
		ClusterClient: client,
		batcher:       batcher,
		name:          connectionName,
		seeds:         seeds,
		merged:        merged,
	}
}

// mergeClusterOptions applies the cluster-wide options first and then the
// per-node block. The per-node block replaces whatever NodeOptions the caller
// put into base.
func mergeClusterOptions(base *ClusterOptions, node NodeOptions) ClusterOptions {
	var merged ClusterOptions
	if base != nil {
		merged = *base
	}
	merged.NodeOptions = &node
	return merged
}

func clusterClientOptions(seeds []Node, merged ClusterOptions) *redis.ClusterOptions {
	addrs := make([]string, 0, len(seeds))
	for _, n := range seeds {
		addrs = append(addrs, joinAddr(n.Host, n.Port))
	}

	node := merged.NodeOptions
	opts := &redis.ClusterOptions{
		Addrs:          addrs,
		ClientName:     node.ConnectionName,
		Username:       node.Username,
		Password:       node.Password,
		TLSConfig:      node.TLS,
		MaxRedirects:   merged.MaxRedirects,
		RouteByLatency: merged.RouteByLatency,
		DialTimeout:    merged.DialTimeout,
		ReadTimeout:    merged.ReadTimeout,
		WriteTimeout:   merged.WriteTimeout,
	}

	switch merged.ScaleReads {
	case ScaleReadsSlave:
		opts.ReadOnly = true
	case ScaleReadsAll:
		opts.ReadOnly = true
		opts.RouteRandomly = true
	}
	return opts
}

type hookable interface {
	AddHook(redis.Hook)
	Pipeline() redis.Pipeliner
}

// installHooks adds caller hooks, then key prefixing, then auto-pipelining.
// go-redis runs the first added hook outermost. The returned pipeliner is nil
// when auto-pipelining is off. A non-nil commandInfo resolves key positions
// for commands keyPositions does not list.
func (f *Factory) installHooks(client hookable, connectionName, keyPrefix string, commandInfo commandInfoFunc) *autoPipeline {
	for _, build := range f.hooks {
		if h := build(connectionName); h != nil {
			client.AddHook(h)
		}
	}
	if keyPrefix != "" {
		client.AddHook(newKeyPrefixHook(keyPrefix, commandInfo))
	}
	if !autoPipelining {
		return nil
	}
	ap := newAutoPipeline(client.Pipeline)
	ap.arm(func() { client.AddHook(ap) })
	return ap
}

// joinAddr passes absent values through; go-redis falls back to
// localhost:6379 for an empty address.
func joinAddr(host string, port int) string {
	if host == "" && port == 0 {
		return ""
	}
	p := ""
	if port != 0 {
		p = strconv.Itoa(port)
	}
	return net.JoinHostPort(host, p)
}

// defaultTLSConfig trusts the system roots. ServerName stays empty so that
// crypto/tls takes it from the address of each connection, which for a
// cluster is whichever node the client was redirected to.
func defaultTLSConfig() *tls.Config {
	return &tls.Config{MinVersion: tls.VersionTLS12}
}
