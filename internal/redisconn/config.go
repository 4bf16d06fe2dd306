// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package redisconn

import (
	"crypto/tls"
	"time"
)

// Config describes one logical Redis connection.
//
// Zero values mean "not set". Nothing is validated: an empty Host or a zero
// Port is handed to go-redis as-is and any resulting dial failure surfaces
// from the handle on first use.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// TLSDisabled turns off transport encryption. TLS is on by default.
	TLSDisabled bool

	// ClusterMode selects a cluster client seeded with Host:Port.
	ClusterMode bool

	// ClusterOptions holds cluster-wide settings. Ignored unless ClusterMode is set.
	ClusterOptions *ClusterOptions

	// KeyPrefix is prepended to every key issued through a cluster handle.
	// Standalone handles do not apply it.
	KeyPrefix string
}

// ScaleReads selects which cluster nodes serve read-only commands.
type ScaleReads string

const (
	ScaleReadsMaster ScaleReads = "master"
	ScaleReadsSlave  ScaleReads = "slave"
	ScaleReadsAll    ScaleReads = "all"
)

// ClusterOptions are cluster-wide settings applied before the per-node block.
//
// NodeOptions exists so callers can pass an options value around unchanged,
// but the factory always replaces it with the identity and credentials from
// Config. A caller-supplied NodeOptions is dropped without warning.
type ClusterOptions struct {
	ScaleReads     ScaleReads
	MaxRedirects   int
	RouteByLatency bool
	DialTimeout    time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	NodeOptions *NodeOptions
}

// NodeOptions is the per-node block every cluster member connects with.
type NodeOptions struct {
	ConnectionName string
	KeyPrefix      string
	Username       string
	Password       string
	AutoPipelining bool
	// TLS is nil when plaintext was requested.
	TLS *tls.Config
}

// Node is a host/port pair used to seed cluster discovery.
type Node struct {
	Host string
	Port int
}
