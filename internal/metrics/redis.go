// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics exposes Prometheus instrumentation for Redis handles.
package metrics

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/ManuGH/storeconn/internal/redisconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

const (
	outcomeOK    = "ok"
	outcomeNil   = "nil"
	outcomeError = "error"
)

var (
	redisCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storeconn_redis_commands_total",
		Help: "Redis commands issued per connection, command and outcome (ok, nil, error)",
	}, []string{"connection", "command", "outcome"})

	redisCommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storeconn_redis_command_duration_seconds",
		Help:    "Time from issuing a Redis command to receiving its reply, including auto-pipeline wait",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"connection", "command"})

	redisAutoPipelineBatch = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storeconn_redis_autopipeline_batch_size",
		Help:    "Number of commands coalesced into one auto-pipelined round-trip",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512},
	}, []string{"connection"})

	redisDials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storeconn_redis_dials_total",
		Help: "Connection attempts per connection and outcome",
	}, []string{"connection", "outcome"})
)

// NewRedisHook returns a go-redis hook recording command, pipeline and dial
// metrics under the given connection name.
func NewRedisHook(connectionName string) redis.Hook {
	return &redisHook{connection: connectionName}
}

var _ redisconn.HookFunc = NewRedisHook

type redisHook struct {
	connection string
}

func (h *redisHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		redisDials.WithLabelValues(h.connection, outcome(err)).Inc()
		return conn, err
	}
}

func (h *redisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.observe(cmd.Name(), err, time.Since(start))
		return err
	}
}

func (h *redisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if redisconn.AutoPipelined(ctx, cmds) {
			// Each command was already counted by ProcessHook.
			redisAutoPipelineBatch.WithLabelValues(h.connection).Observe(float64(len(cmds)))
			return next(ctx, cmds)
		}

		start := time.Now()
		err := next(ctx, cmds)
		elapsed := time.Since(start)
		for _, cmd := range cmds {
			h.observe(cmd.Name(), cmd.Err(), elapsed)
		}
		return err
	}
}

func (h *redisHook) observe(command string, err error, elapsed time.Duration) {
	redisCommands.WithLabelValues(h.connection, command, outcome(err)).Inc()
	redisCommandDuration.WithLabelValues(h.connection, command).Observe(elapsed.Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, redis.Nil):
		return outcomeNil
	default:
		return outcomeError
	}
}
