// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Attribute keys not covered by semconv v1.4.0.
const (
	RedisConnectionNameKey = "db.redis.connection_name"
	RedisPipelineSizeKey   = "db.redis.num_cmd"
	RedisAutoPipelinedKey  = "db.redis.auto_pipelined"
)

// RedisAttributes returns the attributes shared by every Redis span.
func RedisAttributes(connectionName string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.DBSystemRedis}
	if connectionName != "" {
		attrs = append(attrs, attribute.String(RedisConnectionNameKey, connectionName))
	}
	return attrs
}

// CommandAttributes describes a single command. Arguments are never recorded.
func CommandAttributes(name string) []attribute.KeyValue {
	return []attribute.KeyValue{semconv.DBOperationKey.String(name)}
}

// PipelineAttributes describes a pipeline of n commands.
func PipelineAttributes(n int, auto bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(RedisPipelineSizeKey, n),
		attribute.Bool(RedisAutoPipelinedKey, auto),
	}
}
