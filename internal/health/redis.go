// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPingTimeout   = 2 * time.Second
	defaultSlowThreshold = 500 * time.Millisecond
)

// Pinger is the part of a Redis handle the checker needs.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisChecker pings one named connection. A failed ping is unhealthy and
// a slow one degraded.
type RedisChecker struct {
	name          string
	client        Pinger
	timeout       time.Duration
	slowThreshold time.Duration
}

// NewRedisChecker reports under "redis:<connectionName>".
func NewRedisChecker(connectionName string, client Pinger) *RedisChecker {
	return &RedisChecker{
		name:          "redis:" + connectionName,
		client:        client,
		timeout:       defaultPingTimeout,
		slowThreshold: defaultSlowThreshold,
	}
}

func (c *RedisChecker) Name() string {
	return c.name
}

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.client.Ping(ctx).Err()
	latency := time.Since(start)

	if err != nil {
		return CheckResult{
			Status:    StatusUnhealthy,
			Error:     err.Error(),
			Message:   "ping failed",
			LatencyMS: latency.Milliseconds(),
		}
	}
	if latency > c.slowThreshold {
		return CheckResult{
			Status:    StatusDegraded,
			Message:   "ping slow",
			LatencyMS: latency.Milliseconds(),
		}
	}
	return CheckResult{
		Status:    StatusHealthy,
		Message:   "pong",
		LatencyMS: latency.Milliseconds(),
	}
}
