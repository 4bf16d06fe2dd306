// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package redisconn

import (
	"slices"

	"github.com/redis/go-redis/v9"
)

// Topology tags which variant a Handle is.
type Topology int

const (
	TopologyStandalone Topology = iota
	TopologyCluster
)

func (t Topology) String() string {
	switch t {
	case TopologyStandalone:
		return "standalone"
	case TopologyCluster:
		return "cluster"
	default:
		return "unknown"
	}
}

// Handle is a connected-on-demand Redis client of either topology.
// Callers own the handle and must Close it.
type Handle interface {
	redis.UniversalClient

	Topology() Topology
	ConnectionName() string
	AutoPipelining() bool
	TLSEnabled() bool
}

// StandaloneHandle wraps a single-node client.
type StandaloneHandle struct {
	*redis.Client

	batcher    *autoPipeline
	name       string
	node       Node
	tls        bool
	pipelining bool
}

var _ Handle = (*StandaloneHandle)(nil)

func (h *StandaloneHandle) Topology() Topology     { return TopologyStandalone }
func (h *StandaloneHandle) ConnectionName() string { return h.name }
func (h *StandaloneHandle) AutoPipelining() bool   { return h.pipelining }
func (h *StandaloneHandle) TLSEnabled() bool       { return h.tls }

// AddHook installs hook inside the auto-pipeliner. Batched commands reach its
// ProcessPipelineHook rather than its ProcessHook.
func (h *StandaloneHandle) AddHook(hook redis.Hook) {
	h.batcher.arm(func() { h.Client.AddHook(hook) })
}

// Node returns the configured host and port, as given to the factory.
func (h *StandaloneHandle) Node() Node { return h.node }

// ClusterHandle wraps a cluster client seeded with a single node.
type ClusterHandle struct {
	*redis.ClusterClient

	batcher *autoPipeline
	name    string
	seeds   []Node
	merged  ClusterOptions
}

var _ Handle = (*ClusterHandle)(nil)

func (h *ClusterHandle) Topology() Topology     { return TopologyCluster }
func (h *ClusterHandle) ConnectionName() string { return h.name }

// AddHook installs hook inside the auto-pipeliner, as for StandaloneHandle.
func (h *ClusterHandle) AddHook(hook redis.Hook) {
	h.batcher.arm(func() { h.ClusterClient.AddHook(hook) })
}

func (h *ClusterHandle) AutoPipelining() bool {
	return h.merged.NodeOptions.AutoPipelining
}

func (h *ClusterHandle) TLSEnabled() bool {
	return h.merged.NodeOptions.TLS != nil
}

// KeyPrefix returns the prefix applied to every key sent through the handle.
func (h *ClusterHandle) KeyPrefix() string {
	return h.merged.NodeOptions.KeyPrefix
}

// Seeds returns the initial node list used for topology discovery.
func (h *ClusterHandle) Seeds() []Node {
	return slices.Clone(h.seeds)
}

// MergedOptions returns the cluster-wide options with the per-node block
// layered on top, exactly as they were applied to the client.
func (h *ClusterHandle) MergedOptions() ClusterOptions {
	out := h.merged
	node := *h.merged.NodeOptions
	out.NodeOptions = &node
	return out
}
