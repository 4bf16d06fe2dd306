// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package redisconn

import (
	"context"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

type batchKey struct{}

type batchMarker struct {
	first redis.Cmder
	size  int
}

// AutoPipelined reports whether cmds is a batch flushed by the
// auto-pipeliner. Those commands already went through every ProcessHook, so
// pipeline hooks use this to avoid handling them twice. Pipelines issued on
// the same context while the batch dials a connection do not match.
func AutoPipelined(ctx context.Context, cmds []redis.Cmder) bool {
	m, ok := ctx.Value(batchKey{}).(*batchMarker)
	return ok && len(cmds) > 0 && len(cmds) == m.size && cmds[0] == m.first
}

// Commands that hold the connection, change its state, or block the server
// side never share a batch.
var unbatchedCommands = map[string]struct{}{
	"auth":         {},
	"hello":        {},
	"client":       {},
	"select":       {},
	"info":         {},
	"script":       {},
	"quit":         {},
	"reset":        {},
	"shutdown":     {},
	"cluster":      {},
	"readonly":     {},
	"readwrite":    {},
	"multi":        {},
	"exec":         {},
	"discard":      {},
	"watch":        {},
	"unwatch":      {},
	"subscribe":    {},
	"ssubscribe":   {},
	"psubscribe":   {},
	"unsubscribe":  {},
	"sunsubscribe": {},
	"punsubscribe": {},
	"monitor":      {},
	"wait":         {},
	"waitaof":      {},
	"blpop":        {},
	"brpop":        {},
	"brpoplpush":   {},
	"blmove":       {},
	"blmpop":       {},
	"bzpopmin":     {},
	"bzpopmax":     {},
	"bzmpop":       {},
	"xread":        {},
	"xreadgroup":   {},
}

func batchable(cmd redis.Cmder) bool {
	_, skip := unbatchedCommands[cmd.Name()]
	return !skip
}

// autoPipeline coalesces commands issued concurrently on one client into a
// single pipeline. The first caller to find no flush in progress starts a
// flusher that sends everything queued; commands arriving meanwhile wait for
// the next batch.
//
// Only hook chains built while the pipeliner is armed batch. go-redis
// rebuilds the chain for Conn, Tx and WithTimeout clones, and those must keep
// their commands on their own connection, so they get a pass-through.
type autoPipeline struct {
	pipeline func() redis.Pipeliner
	armed    atomic.Bool

	mu       sync.Mutex
	queue    []*queuedCmd
	flushing bool
}

type queuedCmd struct {
	ctx  context.Context
	cmd  redis.Cmder
	done chan struct{}
}

func newAutoPipeline(pipeline func() redis.Pipeliner) *autoPipeline {
	return &autoPipeline{pipeline: pipeline}
}

// arm runs add with batching enabled for every chain add builds.
func (p *autoPipeline) arm(add func()) {
	if p == nil {
		add()
		return
	}
	p.armed.Store(true)
	defer p.armed.Store(false)
	add()
}

func (p *autoPipeline) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (p *autoPipeline) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	if !p.armed.Load() {
		return next
	}
	return func(ctx context.Context, cmd redis.Cmder) error {
		if !batchable(cmd) {
			return next(ctx, cmd)
		}
		if err := ctx.Err(); err != nil {
			cmd.SetErr(err)
			return err
		}

		q := &queuedCmd{ctx: ctx, cmd: cmd, done: make(chan struct{})}

		p.mu.Lock()
		p.queue = append(p.queue, q)
		lead := !p.flushing
		p.flushing = true
		p.mu.Unlock()

		if lead {
			go p.flush()
		}
		return p.wait(q)
	}
}

func (p *autoPipeline) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

// wait returns once q is answered, or as soon as its context ends if it has
// not been handed to a batch yet. A command already in flight belongs to the
// batch until done is closed.
func (p *autoPipeline) wait(q *queuedCmd) error {
	select {
	case <-q.done:
		return q.cmd.Err()
	case <-q.ctx.Done():
	}
	if p.dequeue(q) {
		err := q.ctx.Err()
		q.cmd.SetErr(err)
		return err
	}
	<-q.done
	return q.cmd.Err()
}

func (p *autoPipeline) dequeue(q *queuedCmd) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := slices.Index(p.queue, q)
	if i < 0 {
		return false
	}
	p.queue = slices.Delete(p.queue, i, i+1)
	return true
}

// flush sends batches until the queue is empty.
func (p *autoPipeline) flush() {
	for {
		p.mu.Lock()
		batch := p.queue
		p.queue = nil
		if len(batch) == 0 {
			p.flushing = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		p.exec(batch)
	}
}

func (p *autoPipeline) exec(batch []*queuedCmd) {
	ctx, cancel := batchContext(batch)
	defer cancel()
	ctx = context.WithValue(ctx, batchKey{}, &batchMarker{first: batch[0].cmd, size: len(batch)})

	pipe := p.pipeline()
	for _, q := range batch {
		_ = pipe.Process(ctx, q.cmd)
	}
	// Per-command errors are recorded on each Cmder.
	_, _ = pipe.Exec(ctx)

	for _, q := range batch {
		close(q.done)
	}
}

// batchContext carries the values of the first member's context. It is
// cancelled once every member's context is done, and its deadline is the
// latest member deadline, or none when any member is unbounded. A batch of
// one therefore behaves exactly like its caller's context.
func batchContext(batch []*queuedCmd) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(batch[0].ctx)

	var latest time.Time
	bounded := true
	for _, q := range batch {
		d, ok := q.ctx.Deadline()
		if !ok {
			bounded = false
			break
		}
		if d.After(latest) {
			latest = d
		}
	}
	stopDeadline := context.CancelFunc(func() {})
	if bounded {
		ctx, stopDeadline = context.WithDeadline(ctx, latest)
	}

	ctx, cancel := context.WithCancel(ctx)
	var remaining atomic.Int32
	remaining.Store(int32(len(batch)))
	stops := make([]func() bool, 0, len(batch))
	for _, q := range batch {
		stops = append(stops, context.AfterFunc(q.ctx, func() {
			if remaining.Add(-1) == 0 {
				cancel()
			}
		}))
	}

	return ctx, func() {
		for _, stop := range stops {
			stop()
		}
		cancel()
		stopDeadline()
	}
}
