package kv

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
	"go.uber.org/zap"
)

type backend struct {
	store   Store
	advance func(time.Duration)
}

func backends(t *testing.T) map[string]backend {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	mem := NewMemoryStore().WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})

	return map[string]backend{
		"redis": {store: NewRedisStore(client, "test:"), advance: mr.FastForward},
		"memory": {store: mem, advance: func(d time.Duration) {
			mu.Lock()
			now = now.Add(d)
			mu.Unlock()
		}},
	}
}

func TestStore_SetNXOnlyOnce(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ok, err := b.store.SetNX(ctx, "nonce:acme:n1", "1", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = b.store.SetNX(ctx, "nonce:acme:n1", "1", time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)

			b.advance(2 * time.Minute)
			ok, err = b.store.SetNX(ctx, "nonce:acme:n1", "1", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok, "key should be settable again after expiry")
		})
	}
}

func TestStore_SetNXConcurrent(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var wins int32
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := b.store.SetNX(context.Background(), "race", "1", time.Minute)
					if err == nil && ok {
						atomic.AddInt32(&wins, 1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), wins)
		})
	}
}

func TestStore_GetSetDel(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := b.store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, b.store.Set(ctx, "k", "v", time.Minute))
			v, err := b.store.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v", v)

			require.NoError(t, b.store.Del(ctx, "k"))
			_, err = b.store.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_IncrBelow(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 1; i <= 3; i++ {
				c, err := b.store.IncrBelow(ctx, "rate:x", 3, time.Minute)
				require.NoError(t, err)
				assert.True(t, c.Allowed)
				assert.Equal(t, int64(i), c.Count)
			}
			c, err := b.store.IncrBelow(ctx, "rate:x", 3, time.Minute)
			require.NoError(t, err)
			assert.False(t, c.Allowed)
			assert.Equal(t, int64(3), c.Count, "rejected call must not increment")
			assert.True(t, c.TTL > 0 && c.TTL <= time.Minute)

			b.advance(61 * time.Second)
			c, err = b.store.IncrBelow(ctx, "rate:x", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, c.Allowed)
			assert.Equal(t, int64(1), c.Count)
		})
	}
}

func TestStore_Sets(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, b.store.SAdd(ctx, "s", time.Hour, "a", "b"))
			require.NoError(t, b.store.SAdd(ctx, "s", time.Hour, "b", "c"))
			members, err := b.store.SMembers(ctx, "s")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"a", "b", "c"}, members)

			require.NoError(t, b.store.SRem(ctx, "s", "a"))
			members, err = b.store.SMembers(ctx, "s")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"b", "c"}, members)

			empty, err := b.store.SMembers(ctx, "nope")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	s := NewRedisStore(client, "")
	mr.Close()

	_, err = s.SetNX(context.Background(), "k", "v", time.Minute)
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = s.IncrBelow(context.Background(), "k", 1, time.Minute)
	assert.ErrorIs(t, err, ErrUnavailable)
}

type failingStore struct {
	Store
	calls int
}

func (f *failingStore) Get(context.Context, string) (string, error) {
	f.calls++
	return "", errors.Join(ErrUnavailable, errors.New("boom"))
}

func TestWithBreaker_OpensAfterFailures(t *testing.T) {
	inner := &failingStore{Store: NewMemoryStore()}
	s := WithBreaker(inner, BreakerSettings{Threshold: 2, Timeout: time.Minute}, zap.NewNop().Sugar())

	for i := 0; i < 2; i++ {
		_, err := s.Get(context.Background(), "k")
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	_, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, inner.calls, "open breaker must not reach the store")
}

func TestWithBreaker_NotFoundIsNotAFailure(t *testing.T) {
	s := WithBreaker(NewMemoryStore(), BreakerSettings{Threshold: 1}, zap.NewNop().Sugar())
	for i := 0; i < 3; i++ {
		_, err := s.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	require.NoError(t, s.Set(context.Background(), "k", "v", 0))
	v, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}
