// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package redisconn

import (
	"context"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// keyPrefixHook rewrites key arguments in place before a command is sent.
// Key positions come from keyPositions first and otherwise from the server's
// COMMAND table. Commands known to neither are left untouched, as are
// connection setup (HELLO, AUTH, CLIENT SETNAME) and the pattern arguments
// of KEYS and SCAN.
type keyPrefixHook struct {
	prefix   string
	commands *commandKeys
}

func newKeyPrefixHook(prefix string, commandInfo commandInfoFunc) keyPrefixHook {
	h := keyPrefixHook{prefix: prefix}
	if commandInfo != nil {
		h.commands = &commandKeys{load: commandInfo}
	}
	return h
}

func (h keyPrefixHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h keyPrefixHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.apply(ctx, cmd.Args())
		return next(ctx, cmd)
	}
}

func (h keyPrefixHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		// Auto-pipelined commands were prefixed on their way into the batch.
		if !AutoPipelined(ctx, cmds) {
			for _, cmd := range cmds {
				h.apply(ctx, cmd.Args())
			}
		}
		return next(ctx, cmds)
	}
}

func (h keyPrefixHook) apply(ctx context.Context, args []interface{}) {
	if prefixKeys(h.prefix, args) {
		return
	}
	if name, ok := commandName(args); ok {
		prefixAt(h.prefix, args, infoKeys(h.commands.lookup(ctx, name), args))
	}
}

// prefixKeys prefixes the keys of a command listed in keyPositions and
// reports whether it was listed.
func prefixKeys(prefix string, args []interface{}) bool {
	name, ok := commandName(args)
	if !ok {
		return false
	}
	locate, ok := keyPositions[name]
	if !ok {
		return false
	}
	prefixAt(prefix, args, locate(args))
	return true
}

func commandName(args []interface{}) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	name, ok := args[0].(string)
	if !ok {
		return "", false
	}
	return strings.ToLower(name), true
}

func prefixAt(prefix string, args []interface{}, positions []int) {
	for _, i := range positions {
		switch k := args[i].(type) {
		case string:
			args[i] = prefix + k
		case []byte:
			args[i] = append([]byte(prefix), k...)
		}
	}
}

// commandInfoFunc matches the Command method of go-redis clients.
type commandInfoFunc func(ctx context.Context) *redis.CommandsInfoCmd

// commandKeys caches the server's COMMAND table. A failed fetch is retried
// on the next lookup.
type commandKeys struct {
	load commandInfoFunc

	mu   sync.Mutex
	info map[string]*redis.CommandInfo
}

func (c *commandKeys) lookup(ctx context.Context, name string) *redis.CommandInfo {
	if c == nil || name == "command" {
		return nil
	}
	if _, skip := unbatchedCommands[name]; skip {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info == nil {
		info, err := c.load(ctx).Result()
		if err != nil {
			return nil
		}
		c.info = info
	}
	return c.info[name]
}

// infoKeys walks first, last and step key positions from a COMMAND entry.
// A negative last position counts from the end. Commands with movable keys
// need a per-command parser and are skipped.
func infoKeys(info *redis.CommandInfo, args []interface{}) []int {
	if info == nil || info.FirstKeyPos <= 0 || slices.Contains(info.Flags, "movablekeys") {
		return nil
	}
	last := int(info.LastKeyPos)
	if last < 0 {
		last += len(args)
	}
	step := max(int(info.StepCount), 1)

	var out []int
	for i := int(info.FirstKeyPos); i <= last && i < len(args); i += step {
		out = append(out, i)
	}
	return out
}

type keyLocator func(args []interface{}) []int

func firstKey(args []interface{}) []int {
	if len(args) < 2 {
		return nil
	}
	return []int{1}
}

func keyAt(pos int) keyLocator {
	return func(args []interface{}) []int {
		if len(args) <= pos {
			return nil
		}
		return []int{pos}
	}
}

func keyRange(from, fromEnd, step int) keyLocator {
	return func(args []interface{}) []int {
		var out []int
		for i := from; i < len(args)-fromEnd; i += step {
			out = append(out, i)
		}
		return out
	}
}

// numKeysAt handles commands whose key count is an argument, as in
// EVAL script numkeys key [key ...] arg [arg ...].
func numKeysAt(pos int, extra ...int) keyLocator {
	return func(args []interface{}) []int {
		out := append([]int(nil), extra...)
		if len(args) <= pos {
			return out
		}
		n, ok := toInt(args[pos])
		if !ok {
			return out
		}
		for i := pos + 1; i <= pos+n && i < len(args); i++ {
			out = append(out, i)
		}
		return out
	}
}

// streamKeys locates keys in XREAD/XREADGROUP: the first half of the
// arguments after STREAMS.
func streamKeys(args []interface{}) []int {
	for i := 1; i < len(args); i++ {
		s, ok := args[i].(string)
		if !ok || !strings.EqualFold(s, "streams") {
			continue
		}
		n := (len(args) - i - 1) / 2
		out := make([]int, 0, n)
		for j := i + 1; j <= i+n; j++ {
			out = append(out, j)
		}
		return out
	}
	return nil
}

// withStoreKeys extends base with the argument after any of the given option
// tokens, scanning from position from. skip lists options whose values are
// not keys and how many values they take.
func withStoreKeys(base keyLocator, from int, skip map[string]int, tokens ...string) keyLocator {
	return func(args []interface{}) []int {
		out := base(args)
		for i := from; i < len(args); i++ {
			s, ok := args[i].(string)
			if !ok {
				continue
			}
			s = strings.ToLower(s)
			if n, ok := skip[s]; ok {
				i += n
				continue
			}
			if slices.Contains(tokens, s) && i+1 < len(args) {
				out = append(out, i+1)
				i++
			}
		}
		return out
	}
}

// subcommandKey locates the key of container commands such as MEMORY USAGE,
// where only some subcommands take one.
func subcommandKey(pos int, subcommands ...string) keyLocator {
	return func(args []interface{}) []int {
		if len(args) <= pos {
			return nil
		}
		sub, ok := args[1].(string)
		if !ok || !slices.Contains(subcommands, strings.ToLower(sub)) {
			return nil
		}
		return []int{pos}
	}
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case uint:
		return int(n), true
	case uint64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

var keyPositions = map[string]keyLocator{}

func register(fn keyLocator, names ...string) {
	for _, name := range names {
		keyPositions[name] = fn
	}
}

func init() {
	register(firstKey,
		// strings
		"get", "set", "setnx", "setex", "psetex", "getset", "getdel", "getex",
		"append", "strlen", "incr", "incrby", "incrbyfloat", "decr", "decrby",
		"getrange", "setrange", "setbit", "getbit", "bitcount", "bitpos", "bitfield",
		"bitfield_ro", "substr",
		// keyspace
		"expire", "pexpire", "expireat", "pexpireat", "expiretime", "pexpiretime",
		"ttl", "pttl", "persist", "type", "dump", "restore", "move",
		// hashes
		"hget", "hset", "hsetnx", "hmset", "hmget", "hdel", "hgetall", "hkeys",
		"hvals", "hlen", "hexists", "hincrby", "hincrbyfloat", "hscan", "hstrlen",
		"hrandfield", "hgetdel", "hgetex", "hsetex", "hexpire", "hpexpire",
		"hexpireat", "hpexpireat", "httl", "hpttl", "hexpiretime", "hpexpiretime",
		"hpersist",
		// lists
		"lpush", "rpush", "lpushx", "rpushx", "lpop", "rpop", "llen", "lrange",
		"lindex", "lset", "linsert", "lrem", "ltrim", "lpos",
		// sets
		"sadd", "srem", "smembers", "sismember", "smismember", "scard", "spop",
		"srandmember", "sscan",
		// sorted sets
		"zadd", "zrem", "zscore", "zmscore", "zincrby", "zcard", "zcount", "zrange",
		"zrangebyscore", "zrevrange", "zrevrangebyscore", "zrangebylex",
		"zrevrangebylex", "zlexcount", "zrank", "zrevrank", "zremrangebyrank",
		"zremrangebyscore", "zremrangebylex", "zscan", "zpopmin", "zpopmax",
		"zrandmember",
		// hyperloglog, streams, geo
		"pfadd", "xadd", "xlen", "xrange", "xrevrange", "xdel", "xtrim", "xack",
		"xpending", "xclaim", "xautoclaim", "geoadd", "geopos", "geodist",
		"geohash", "georadius_ro", "georadiusbymember_ro", "geosearch", "sort_ro",
	)

	register(keyRange(1, 0, 1),
		"del", "unlink", "exists", "touch", "mget", "watch",
		"sinter", "sunion", "sdiff", "sinterstore", "sunionstore", "sdiffstore",
		"pfcount", "pfmerge",
	)
	register(keyRange(1, 0, 2), "mset", "msetnx")
	register(keyRange(1, 1, 1), "blpop", "brpop", "bzpopmin", "bzpopmax")
	register(keyRange(2, 0, 1), "bitop")

	firstTwo := func(args []interface{}) []int {
		switch {
		case len(args) >= 3:
			return []int{1, 2}
		case len(args) == 2:
			return []int{1}
		}
		return nil
	}
	register(firstTwo,
		"rename", "renamenx", "rpoplpush", "brpoplpush", "lmove", "blmove",
		"smove", "copy", "zrangestore", "geosearchstore", "lcs",
	)

	register(numKeysAt(2), "eval", "evalsha", "eval_ro", "evalsha_ro", "fcall", "fcall_ro")
	register(numKeysAt(2, 1), "zunionstore", "zinterstore", "zdiffstore")
	register(numKeysAt(1), "zunion", "zinter", "zdiff", "sintercard", "zintercard", "lmpop", "zmpop")
	register(numKeysAt(2), "blmpop", "bzmpop")

	register(keyAt(2), "object", "xgroup", "xinfo")
	register(subcommandKey(2, "usage"), "memory")

	// Options of SORT and GEORADIUS that name a destination key.
	register(withStoreKeys(firstKey, 2, map[string]int{"by": 1, "get": 1, "limit": 2}, "store"), "sort")
	geoSkip := map[string]int{"count": 1}
	register(withStoreKeys(firstKey, 6, geoSkip, "store", "storedist"), "georadius")
	register(withStoreKeys(firstKey, 5, geoSkip, "store", "storedist"), "georadiusbymember")
	register(streamKeys, "xread", "xreadgroup")
}
