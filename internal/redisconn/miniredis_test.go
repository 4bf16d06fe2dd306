// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package redisconn

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plaintextConfig points at a miniredis instance. miniredis speaks no TLS.
func plaintextConfig(t *testing.T, mr *miniredis.Miniredis) Config {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return Config{Host: mr.Host(), Port: port, TLSDisabled: true}
}

func TestStandalone_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	f, _ := newTestFactory(t)

	h := f.Create("cache-1", plaintextConfig(t, mr))
	closeHandle(t, h)

	ctx := context.Background()
	require.NoError(t, h.Set(ctx, "greeting", "hello", time.Minute).Err())

	got, err := h.Get(ctx, "greeting").Result()
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	_, err = h.Get(ctx, "missing").Result()
	assert.ErrorIs(t, err, redis.Nil)
}

func TestStandalone_IgnoresKeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	f, _ := newTestFactory(t)

	cfg := plaintextConfig(t, mr)
	cfg.KeyPrefix = "app:"
	h := f.Create("plain", cfg)
	closeHandle(t, h)

	require.NoError(t, h.Set(context.Background(), "k", "v", 0).Err())

	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	assert.False(t, mr.Exists("app:k"))
}

func TestStandalone_ConcurrentCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	f, _ := newTestFactory(t)

	h := f.Create("counter", plaintextConfig(t, mr))
	closeHandle(t, h)

	const workers = 64
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]int64, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.Incr(ctx, "hits").Result()
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, workers)
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		seen[results[i]] = true
	}
	assert.Len(t, seen, workers, "every INCR should observe a distinct value")

	got, err := mr.Get("hits")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(workers), got)
}

func TestStandalone_ErrorsSurfaceOnUse(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := plaintextConfig(t, mr)
	mr.Close()

	f, _ := newTestFactory(t)
	h := f.Create("gone", cfg)
	closeHandle(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, h.Ping(ctx).Err())
}

func TestStandalone_AuthRejectedOnUse(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireUserAuth("app", "right")

	f, _ := newTestFactory(t)
	cfg := plaintextConfig(t, mr)
	cfg.Username = "app"
	cfg.Password = "wrong"
	h := f.Create("auth", cfg)
	closeHandle(t, h)

	assert.Error(t, h.Ping(context.Background()).Err())

	cfg.Password = "right"
	ok := f.Create("auth", cfg)
	closeHandle(t, ok)
	assert.NoError(t, ok.Ping(context.Background()).Err())
}

func TestCluster_PrefixesKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	f, _ := newTestFactory(t)

	cfg := plaintextConfig(t, mr)
	cfg.ClusterMode = true
	cfg.KeyPrefix = "app:"
	h := f.Create("cluster", cfg)
	closeHandle(t, h)

	ctx := context.Background()
	require.NoError(t, h.Set(ctx, "user:1", "alice", 0).Err())

	got, err := mr.Get("app:user:1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got)
	assert.False(t, mr.Exists("user:1"))

	val, err := h.Get(ctx, "user:1").Result()
	require.NoError(t, err)
	assert.Equal(t, "alice", val)

	_, err = h.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, "piped", "1", 0)
		pipe.HSet(ctx, "hash", "f", "v")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, mr.Exists("app:piped"))
	assert.Equal(t, "v", mr.HGet("app:hash", "f"))
}

func TestCluster_ConcurrentPrefixedCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	f, _ := newTestFactory(t)

	cfg := plaintextConfig(t, mr)
	cfg.ClusterMode = true
	cfg.KeyPrefix = "p:"
	h := f.Create("cluster", cfg)
	closeHandle(t, h)

	const workers = 32
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, h.Set(ctx, "k"+strconv.Itoa(i), i, 0).Err())
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		key := "p:k" + strconv.Itoa(i)
		got, err := mr.Get(key)
		require.NoError(t, err, key)
		assert.Equal(t, strconv.Itoa(i), got)
	}
}

func TestStandalone_ConnKeepsSelectedDB(t *testing.T) {
	mr := miniredis.RunT(t)
	f, _ := newTestFactory(t)

	h := f.Create("conn", plaintextConfig(t, mr))
	closeHandle(t, h)

	ctx := context.Background()
	conn := h.(*StandaloneHandle).Conn()
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.Select(ctx, 1).Err())
	require.NoError(t, conn.Set(ctx, "k", "v", 0).Err())

	got, err := mr.DB(1).Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	assert.False(t, mr.Exists("k"), "db 0 must stay empty")

	val, err := conn.Get(ctx, "k").Result()
	require.NoError(t, err)
	assert.Equal(t, "v", val)
}

func TestStandalone_TxStaysOnWatchedConnection(t *testing.T) {
	mr := miniredis.RunT(t)
	f, _ := newTestFactory(t)

	h := f.Create("tx", plaintextConfig(t, mr))
	closeHandle(t, h)

	ctx := context.Background()
	err := h.Watch(ctx, func(tx *redis.Tx) error {
		if err := tx.Select(ctx, 2).Err(); err != nil {
			return err
		}
		return tx.Set(ctx, "k", "v", 0).Err()
	}, "k")
	require.NoError(t, err)

	got, err := mr.DB(2).Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	assert.False(t, mr.Exists("k"))
}

func TestStandalone_BatchesAfterAddHook(t *testing.T) {
	mr := miniredis.RunT(t)
	f, _ := newTestFactory(t)

	h := f.Create("hooked", plaintextConfig(t, mr))
	closeHandle(t, h)

	rec := &batchRecorder{}
	h.AddHook(rec)

	require.NoError(t, h.Set(context.Background(), "k", "v", 0).Err())
	assert.Equal(t, 1, rec.count())
}

// batchRecorder counts auto-pipelined batches.
type batchRecorder struct {
	mu      sync.Mutex
	batches int
}

func (r *batchRecorder) DialHook(next redis.DialHook) redis.DialHook { return next }
func (r *batchRecorder) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return next
}

func (r *batchRecorder) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if AutoPipelined(ctx, cmds) {
			r.mu.Lock()
			r.batches++
			r.mu.Unlock()
		}
		return next(ctx, cmds)
	}
}

func (r *batchRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches
}

func TestCluster_PrefixesStoreAndSubcommandKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	f, _ := newTestFactory(t)

	cfg := plaintextConfig(t, mr)
	cfg.ClusterMode = true
	cfg.KeyPrefix = "app:"
	h := f.Create("geo", cfg)
	closeHandle(t, h)

	ctx := context.Background()
	require.NoError(t, h.GeoAdd(ctx, "places", &redis.GeoLocation{Name: "Palermo", Longitude: 13.361389, Latitude: 38.115556}).Err())
	require.True(t, mr.Exists("app:places"))

	n, err := h.GeoRadiusStore(ctx, "places", 15, 37, &redis.GeoRadiusQuery{Radius: 200, Unit: "km", Store: "near"}).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, mr.Exists("app:near"))
	assert.False(t, mr.Exists("near"))

	size, err := h.MemoryUsage(ctx, "places").Result()
	require.NoError(t, err)
	assert.Positive(t, size)
}

func TestCommandKeys_LoadsServerTable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	keys := &commandKeys{load: client.Command}
	ctx := context.Background()

	info := keys.lookup(ctx, "sdiffstore")
	require.NotNil(t, info)
	assert.Equal(t, []int{1, 2, 3}, infoKeys(info, []interface{}{"sdiffstore", "dst", "a", "b"}))

	info = keys.lookup(ctx, "hincrbyfloat")
	require.NotNil(t, info)
	assert.Equal(t, []int{1}, infoKeys(info, []interface{}{"hincrbyfloat", "h", "f", 1.5}))

	assert.Nil(t, keys.lookup(ctx, "nosuchcommand"))
}
