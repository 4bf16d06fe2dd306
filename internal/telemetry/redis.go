// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"errors"
	"net"

	"github.com/ManuGH/storeconn/internal/redisconn"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const redisTracerName = "github.com/ManuGH/storeconn/redis"

// RedisHook returns a hook builder that opens a client span for every dial,
// command and pipeline on a handle.
func RedisHook(tp trace.TracerProvider) redisconn.HookFunc {
	tracer := tp.Tracer(redisTracerName)
	return func(connectionName string) redis.Hook {
		return &tracingHook{
			tracer: tracer,
			attrs:  RedisAttributes(connectionName),
		}
	}
}

type tracingHook struct {
	tracer trace.Tracer
	attrs  []attribute.KeyValue
}

func (h *tracingHook) start(ctx context.Context, name string, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs := make([]attribute.KeyValue, 0, len(h.attrs)+len(extra))
	attrs = append(attrs, h.attrs...)
	attrs = append(attrs, extra...)
	return h.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func (h *tracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		ctx, span := h.start(ctx, "redis.dial", attribute.String("net.peer.addr", addr))
		defer span.End()

		conn, err := next(ctx, network, addr)
		recordError(span, err)
		return conn, err
	}
}

func (h *tracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := h.start(ctx, cmd.Name(), CommandAttributes(cmd.Name())...)
		defer span.End()

		err := next(ctx, cmd)
		recordError(span, err)
		return err
	}
}

func (h *tracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		auto := redisconn.AutoPipelined(ctx, cmds)
		ctx, span := h.start(ctx, "redis.pipeline", PipelineAttributes(len(cmds), auto)...)
		defer span.End()

		err := next(ctx, cmds)
		recordError(span, err)
		return err
	}
}

// recordError marks the span failed. A nil reply is a normal outcome.
func recordError(span trace.Span, err error) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
