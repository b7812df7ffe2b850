package redis

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketledger-backend/pkg/config"
)

func TestFixedWindowAllowStartsWindowOnFirstHit(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	allowed, count, err := client.FixedWindowAllow(ctx, "checkout:user-1", 2, time.Second)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, int64(1), count)
	require.Equal(t, []int64{1000}, mock.windows["ml:rate_limit:checkout:user-1"])

	allowed, count, err = client.FixedWindowAllow(ctx, "checkout:user-1", 2, time.Second)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, int64(2), count)
	require.Len(t, mock.windows["ml:rate_limit:checkout:user-1"], 1, "window must not restart")

	allowed, _, err = client.FixedWindowAllow(ctx, "checkout:user-1", 2, time.Second)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestFixedWindowAllowFallsBackToEvalOnNoScript(t *testing.T) {
	mock := newMockCmdable()
	mock.noScript = true
	client := &Client{store: mock}

	allowed, count, err := client.FixedWindowAllow(context.Background(), "gift_card:ip", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, int64(1), count)
	require.Equal(t, 1, mock.evalCalls)
}

func TestReleaseIfOwnerComparesToken(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.LockKey("cron-worker:test")

	ok, err := client.SetNX(ctx, key, "worker-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := client.ReleaseIfOwner(ctx, key, "worker-b")
	require.NoError(t, err)
	require.False(t, released)

	released, err = client.ReleaseIfOwner(ctx, key, "worker-a")
	require.NoError(t, err)
	require.True(t, released)

	_, err = client.Get(ctx, key)
	require.ErrorIs(t, err, ErrNil)
}

func TestSetNXOnlyFirstWins(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	first, err := client.SetNX(ctx, "k", "1", time.Minute)
	require.NoError(t, err)
	require.True(t, first)

	second, err := client.SetNX(ctx, "k", "1", time.Minute)
	require.NoError(t, err)
	require.False(t, second)

	require.NoError(t, client.Del(ctx, "k"))
	_, err = client.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNil)
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	require.Equal(t, "ml:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	require.Equal(t, "ml:rate_limit:scope", client.RateLimitKey("scope"))
	require.Equal(t, "ml:lock:cron", client.LockKey(" cron "))
	require.Equal(t, "ml:idempotency:scope", client.IdempotencyKey("scope", ""), "empty parts are skipped")
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{
		URL:         "redis://:secret@cache:6380/3",
		DB:          7,
		PoolSize:    20,
		DialTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, "cache:6380", opts.Addr)
	require.Equal(t, 3, opts.DB, "url db wins over config")
	require.Equal(t, 20, opts.PoolSize)
	require.Equal(t, 2*time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 2})
	require.NoError(t, err)
	require.Equal(t, 2, opts.DB)
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	ctx := context.Background()
	require.Error(t, client.Ping(ctx))
	_, err := client.SetNX(ctx, "k", "v", 0)
	require.Error(t, err)
	_, _, err = client.FixedWindowAllow(ctx, "s", 1, time.Second)
	require.Error(t, err)
	_, err = client.ReleaseIfOwner(ctx, "k", "t")
	require.Error(t, err)
}

// mockCmdable emulates the two Lua scripts by their SHA.
type mockCmdable struct {
	data      map[string]string
	counters  map[string]int64
	windows   map[string][]int64
	noScript  bool
	evalCalls int
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:     make(map[string]string),
		counters: make(map[string]int64),
		windows:  make(map[string][]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) EvalSha(ctx context.Context, sha string, keys []string, args ...interface{}) *redis.Cmd {
	if m.noScript {
		return redis.NewCmdResult(nil, noScriptError{})
	}
	return m.run(sha, keys, args)
}

func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	m.evalCalls++
	sum := sha1.Sum([]byte(script))
	return m.run(hex.EncodeToString(sum[:]), keys, args)
}

func (m *mockCmdable) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return m.Eval(ctx, script, keys, args...)
}

func (m *mockCmdable) EvalShaRO(ctx context.Context, sha string, keys []string, args ...interface{}) *redis.Cmd {
	return m.EvalSha(ctx, sha, keys, args...)
}

func (m *mockCmdable) ScriptExists(context.Context, ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult([]bool{!m.noScript}, nil)
}

func (m *mockCmdable) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func (m *mockCmdable) run(sha string, keys []string, args []interface{}) *redis.Cmd {
	key := keys[0]
	switch sha {
	case fixedWindowScript.Hash():
		m.counters[key]++
		if m.counters[key] == 1 {
			m.windows[key] = append(m.windows[key], args[0].(int64))
		}
		return redis.NewCmdResult(m.counters[key], nil)
	case releaseScript.Hash():
		if m.data[key] == args[0].(string) {
			delete(m.data, key)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unknown sha %s", sha))
}

type noScriptError struct{}

func (noScriptError) Error() string { return "NOSCRIPT No matching script. Please use EVAL." }

func (noScriptError) RedisError() {}
