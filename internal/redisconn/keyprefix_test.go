// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package redisconn

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefixKeys(t *testing.T) {
	tests := []struct {
		name string
		args []interface{}
		want []interface{}
	}{
		{
			name: "single key",
			args: []interface{}{"set", "k", "v"},
			want: []interface{}{"set", "p:k", "v"},
		},
		{
			name: "upper-case command",
			args: []interface{}{"GET", "k"},
			want: []interface{}{"GET", "p:k"},
		},
		{
			name: "all args are keys",
			args: []interface{}{"del", "a", "b", "c"},
			want: []interface{}{"del", "p:a", "p:b", "p:c"},
		},
		{
			name: "key value pairs",
			args: []interface{}{"mset", "a", "1", "b", "2"},
			want: []interface{}{"mset", "p:a", "1", "p:b", "2"},
		},
		{
			name: "trailing timeout",
			args: []interface{}{"blpop", "a", "b", 5},
			want: []interface{}{"blpop", "p:a", "p:b", 5},
		},
		{
			name: "eval numkeys",
			args: []interface{}{"evalsha", "sha", 2, "a", "b", "arg"},
			want: []interface{}{"evalsha", "sha", 2, "p:a", "p:b", "arg"},
		},
		{
			name: "destination plus numkeys",
			args: []interface{}{"zunionstore", "dst", "2", "a", "b", "weights", "1", "2"},
			want: []interface{}{"zunionstore", "p:dst", "2", "p:a", "p:b", "weights", "1", "2"},
		},
		{
			name: "two keys",
			args: []interface{}{"rename", "old", "new"},
			want: []interface{}{"rename", "p:old", "p:new"},
		},
		{
			name: "streams",
			args: []interface{}{"xread", "count", 10, "streams", "s1", "s2", "0", "0"},
			want: []interface{}{"xread", "count", 10, "streams", "p:s1", "p:s2", "0", "0"},
		},
		{
			name: "subcommand key",
			args: []interface{}{"object", "encoding", "k"},
			want: []interface{}{"object", "encoding", "p:k"},
		},
		{
			name: "bytes key",
			args: []interface{}{"get", []byte("k")},
			want: []interface{}{"get", []byte("p:k")},
		},
		{
			name: "keyless command untouched",
			args: []interface{}{"client", "setname", "conn"},
			want: []interface{}{"client", "setname", "conn"},
		},
		{
			name: "patterns untouched",
			args: []interface{}{"keys", "*"},
			want: []interface{}{"keys", "*"},
		},
		{
			name: "non-string key untouched",
			args: []interface{}{"get", 42},
			want: []interface{}{"get", 42},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefixKeys("p:", tt.args)
			assert.Equal(t, tt.want, tt.args)
		})
	}
}

func TestPrefixKeys_Empty(t *testing.T) {
	assert.NotPanics(t, func() {
		prefixKeys("p:", nil)
		prefixKeys("p:", []interface{}{"get"})
		prefixKeys("p:", []interface{}{"eval", "script"})
		prefixKeys("p:", []interface{}{"eval", "script", "9", "only"})
	})
}

// captureHook records the arguments of every command and never sends them.
type captureHook struct {
	args [][]interface{}
}

func (c *captureHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (c *captureHook) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		c.args = append(c.args, cmd.Args())
		return nil
	}
}

func (c *captureHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

// builtArgs returns the arguments go-redis builds for the one command issued by fn.
func builtArgs(t *testing.T, fn func(ctx context.Context, c *redis.Client)) []interface{} {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	capture := &captureHook{}
	client.AddHook(capture)
	fn(context.Background(), client)
	require.Len(t, capture.args, 1)
	return capture.args[0]
}

func prefixedArgs(args []interface{}) []string {
	var out []string
	for _, a := range args[1:] {
		if s, ok := a.(string); ok && strings.HasPrefix(s, "p:") {
			out = append(out, strings.TrimPrefix(s, "p:"))
		}
	}
	return out
}

func TestPrefixKeys_GoRedisCommands(t *testing.T) {
	tests := []struct {
		name  string
		issue func(ctx context.Context, c *redis.Client)
		keys  []string
	}{
		{
			name: "sort",
			issue: func(ctx context.Context, c *redis.Client) {
				c.Sort(ctx, "list", &redis.Sort{By: "weight_*", Get: []string{"#"}})
			},
			keys: []string{"list"},
		},
		{
			name: "sort store",
			issue: func(ctx context.Context, c *redis.Client) {
				c.SortStore(ctx, "list", "sorted", &redis.Sort{Get: []string{"store"}, Alpha: true})
			},
			keys: []string{"list", "sorted"},
		},
		{
			name: "sort_ro",
			issue: func(ctx context.Context, c *redis.Client) {
				c.SortRO(ctx, "list", &redis.Sort{Count: 10})
			},
			keys: []string{"list"},
		},
		{
			name: "georadius_ro",
			issue: func(ctx context.Context, c *redis.Client) {
				c.GeoRadius(ctx, "places", 13.4, 52.5, &redis.GeoRadiusQuery{Radius: 10, Unit: "km", Count: 5})
			},
			keys: []string{"places"},
		},
		{
			name: "georadius store and storedist",
			issue: func(ctx context.Context, c *redis.Client) {
				c.GeoRadiusStore(ctx, "places", 13.4, 52.5, &redis.GeoRadiusQuery{
					Radius: 10, Unit: "km", Store: "near", StoreDist: "dist",
				})
			},
			keys: []string{"places", "near", "dist"},
		},
		{
			name: "georadiusbymember store",
			issue: func(ctx context.Context, c *redis.Client) {
				c.GeoRadiusByMemberStore(ctx, "places", "store", &redis.GeoRadiusQuery{Radius: 1, Store: "near"})
			},
			keys: []string{"places", "near"},
		},
		{
			name: "lcs",
			issue: func(ctx context.Context, c *redis.Client) {
				c.LCS(ctx, &redis.LCSQuery{Key1: "a", Key2: "b", Len: true})
			},
			keys: []string{"a", "b"},
		},
		{
			name: "memory usage",
			issue: func(ctx context.Context, c *redis.Client) {
				c.MemoryUsage(ctx, "blob", 5)
			},
			keys: []string{"blob"},
		},
		{
			name: "hexpire",
			issue: func(ctx context.Context, c *redis.Client) {
				c.HExpire(ctx, "session", time.Minute, "token", "csrf")
			},
			keys: []string{"session"},
		},
		{
			name: "bitfield_ro",
			issue: func(ctx context.Context, c *redis.Client) {
				c.BitFieldRO(ctx, "flags", "u8", 0)
			},
			keys: []string{"flags"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := builtArgs(t, tt.issue)
			require.True(t, prefixKeys("p:", args), "%v", args)
			assert.Equal(t, tt.keys, prefixedArgs(args))
		})
	}
}

func TestPrefixKeys_MemorySubcommandsWithoutKey(t *testing.T) {
	args := []interface{}{"memory", "stats"}
	prefixKeys("p:", args)
	assert.Equal(t, []interface{}{"memory", "stats"}, args)
}

func commandTable(info map[string]*redis.CommandInfo, loads *atomic.Int32) commandInfoFunc {
	return func(ctx context.Context) *redis.CommandsInfoCmd {
		loads.Add(1)
		cmd := redis.NewCommandsInfoCmd(ctx, "command")
		cmd.SetVal(info)
		return cmd
	}
}

func TestKeyPrefixHook_FallsBackToCommandTable(t *testing.T) {
	var loads atomic.Int32
	h := newKeyPrefixHook("p:", commandTable(map[string]*redis.CommandInfo{
		"newcmd":  {Name: "newcmd", FirstKeyPos: 1, LastKeyPos: -2, StepCount: 1},
		"pairs":   {Name: "pairs", FirstKeyPos: 1, LastKeyPos: -1, StepCount: 2},
		"movable": {Name: "movable", FirstKeyPos: 1, LastKeyPos: 1, StepCount: 1, Flags: []string{"movablekeys"}},
		"keyless": {Name: "keyless"},
	}, &loads))
	ctx := context.Background()

	tests := []struct {
		args []interface{}
		want []interface{}
	}{
		{[]interface{}{"NEWCMD", "a", "b", "arg"}, []interface{}{"NEWCMD", "p:a", "p:b", "arg"}},
		{[]interface{}{"pairs", "a", "1", "b", "2"}, []interface{}{"pairs", "p:a", "1", "p:b", "2"}},
		{[]interface{}{"movable", "a"}, []interface{}{"movable", "a"}},
		{[]interface{}{"keyless", "a"}, []interface{}{"keyless", "a"}},
		{[]interface{}{"unknown", "a"}, []interface{}{"unknown", "a"}},
		{[]interface{}{"get", "k"}, []interface{}{"get", "p:k"}},
	}
	for _, tt := range tests {
		h.apply(ctx, tt.args)
		assert.Equal(t, tt.want, tt.args)
	}
	assert.EqualValues(t, 1, loads.Load(), "the table is fetched once")
}

func TestKeyPrefixHook_CommandTableRetriedAfterError(t *testing.T) {
	var calls int
	h := newKeyPrefixHook("p:", func(ctx context.Context) *redis.CommandsInfoCmd {
		calls++
		cmd := redis.NewCommandsInfoCmd(ctx, "command")
		if calls == 1 {
			cmd.SetErr(errors.New("connection refused"))
			return cmd
		}
		cmd.SetVal(map[string]*redis.CommandInfo{
			"newcmd": {Name: "newcmd", FirstKeyPos: 1, LastKeyPos: 1, StepCount: 1},
		})
		return cmd
	})
	ctx := context.Background()

	first := []interface{}{"newcmd", "a"}
	h.apply(ctx, first)
	assert.Equal(t, []interface{}{"newcmd", "a"}, first)

	second := []interface{}{"newcmd", "a"}
	h.apply(ctx, second)
	assert.Equal(t, []interface{}{"newcmd", "p:a"}, second)
	assert.Equal(t, 2, calls)
}

func TestKeyPrefixHook_NeverLooksUpCommandItself(t *testing.T) {
	h := newKeyPrefixHook("p:", func(context.Context) *redis.CommandsInfoCmd {
		t.Fatal("COMMAND must not trigger a table fetch")
		return nil
	})
	args := []interface{}{"command"}
	h.apply(context.Background(), args)
	assert.Equal(t, []interface{}{"command"}, args)
}
