package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantgate/pkg/kv"
	"tenantgate/pkg/problems"
)

func redisStore(t *testing.T) (*kv.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return kv.NewRedisStore(client, ""), mr
}

func TestCheck_DefaultLimit100(t *testing.T) {
	store, _ := redisStore(t)
	l := New(store, 0, 0)
	ctx := context.Background()

	for i := 1; i <= 100; i++ {
		d, err := l.Check(ctx, "x")
		require.NoError(t, err, "request %d", i)
		assert.Equal(t, int64(100-i), d.Remaining)
	}
	d, err := l.Check(ctx, "x")
	require.Error(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(100), d.Count)

	var rej *problems.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, problems.RateLimitExceeded, rej.Kind)
	assert.Equal(t, 60*time.Second, rej.RetryAfter)
}

func TestCheck_WindowResets(t *testing.T) {
	store, mr := redisStore(t)
	l := New(store, 2, 10*time.Second)
	ctx := context.Background()

	_, err := l.Check(ctx, "t")
	require.NoError(t, err)
	_, err = l.Check(ctx, "t")
	require.NoError(t, err)
	_, err = l.Check(ctx, "t")
	assert.True(t, problems.IsKind(err, problems.RateLimitExceeded))

	mr.FastForward(11 * time.Second)
	d, err := l.Check(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.Count)
}

func TestCheck_TenantsIsolated(t *testing.T) {
	l := New(kv.NewMemoryStore(), 1, time.Minute)
	ctx := context.Background()
	_, err := l.Check(ctx, "a")
	require.NoError(t, err)
	_, err = l.Check(ctx, "b")
	assert.NoError(t, err)
}

func TestCheckWith_Concurrent(t *testing.T) {
	store, _ := redisStore(t)
	l := New(store, 0, 0)
	var allowed int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.CheckWith(context.Background(), "burst", 25, time.Minute); err == nil {
				atomic.AddInt32(&allowed, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(25), allowed)
}

type downKV struct{ kv.Store }

func (downKV) IncrBelow(context.Context, string, int64, time.Duration) (kv.Counter, error) {
	return kv.Counter{}, kv.ErrUnavailable
}

func TestCheck_StoreDownFailsClosed(t *testing.T) {
	l := New(downKV{kv.NewMemoryStore()}, 10, time.Minute)
	_, err := l.Check(context.Background(), "x")
	assert.True(t, problems.IsKind(err, problems.StoreUnavailable))
}
