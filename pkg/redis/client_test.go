package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/cautela-backend/pkg/config"
)

func TestHitCountsWithinWindow(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCommander()
	client := &Client{cmd: fake}

	count, resetIn, err := client.Hit(ctx, "ip:public:5.6.7.8", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Minute, resetIn)

	fake.pttl["cautela:rate_limit:ip:public:5.6.7.8"] = 12_500
	count, resetIn, err = client.Hit(ctx, "ip:public:5.6.7.8", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	require.Equal(t, 12500*time.Millisecond, resetIn)
}

func TestHitRejectsNonPositiveWindow(t *testing.T) {
	client := &Client{cmd: newFakeCommander()}
	_, _, err := client.Hit(context.Background(), "scope", 0)
	require.Error(t, err)
}

func TestDelIfValueOnlyRemovesOwnedKey(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCommander()
	client := &Client{cmd: fake}

	ok, err := client.SetNX(ctx, "cautela:lock:cron-worker", "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	deleted, err := client.DelIfValue(ctx, "cautela:lock:cron-worker", "owner-b")
	require.NoError(t, err)
	require.False(t, deleted)

	deleted, err = client.DelIfValue(ctx, "cautela:lock:cron-worker", "owner-a")
	require.NoError(t, err)
	require.True(t, deleted)

	_, err = client.Get(ctx, "cautela:lock:cron-worker")
	require.ErrorIs(t, err, redis.Nil)
}

func TestRevocationEntryRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newFakeCommander()}

	key := client.RevocationKey("jti-1")
	require.NoError(t, client.Set(ctx, key, `{"operator_id":"op"}`, 10*time.Minute))

	value, err := client.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, `{"operator_id":"op"}`, value)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	require.ErrorIs(t, err, redis.Nil)
}

func TestNilClientErrors(t *testing.T) {
	var client *Client
	require.ErrorIs(t, client.Ping(context.Background()), errNotInitialized)
	_, err := (&Client{}).SetNX(context.Background(), "k", "v", time.Second)
	require.ErrorIs(t, err, errNotInitialized)
	require.NoError(t, client.Close())
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	require.Equal(t, "cautela:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	require.Equal(t, "cautela:lock:cron-worker", client.LockKey("cron-worker"))
	require.Equal(t, "cautela:revoked:abc", client.RevocationKey("abc"))
	require.Equal(t, "cautela:idempotency:scope", client.IdempotencyKey(" scope ", ""))
}

func TestBuildOptions(t *testing.T) {
	_, err := buildOptions(config.RedisConfig{})
	require.Error(t, err)

	opts, err := buildOptions(config.RedisConfig{
		URL:         "redis://:secret@cache:6380/2",
		DB:          5,
		PoolSize:    20,
		DialTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, "cache:6380", opts.Addr)
	require.Equal(t, 2, opts.DB)
	require.Equal(t, 20, opts.PoolSize)
	require.Equal(t, 3*time.Second, opts.DialTimeout)

	opts, err = buildOptions(config.RedisConfig{Address: "localhost:6379", DB: 1, MinIdleConns: 4})
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", opts.Addr)
	require.Equal(t, 1, opts.DB)
	require.Equal(t, 4, opts.MinIdleConns)
}

// fakeCommander emulates the two Lua scripts and plain string commands.
type fakeCommander struct {
	data   map[string]string
	counts map[string]int64
	pttl   map[string]int64
}

func newFakeCommander() *fakeCommander {
	return &fakeCommander{
		data:   map[string]string{},
		counts: map[string]int64{},
		pttl:   map[string]int64{},
	}
}

func (f *fakeCommander) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCommander) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCommander) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCommander) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommander) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			n++
		}
		delete(f.data, key)
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeCommander) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	key := keys[0]
	switch script {
	case hitScript:
		f.counts[key]++
		if _, ok := f.pttl[key]; !ok {
			f.pttl[key] = args[0].(int64)
		}
		return redis.NewCmdResult([]any{f.counts[key], f.pttl[key]}, nil)
	case releaseScript:
		if f.data[key] == args[0] {
			delete(f.data, key)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
}
