package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings configures WithBreaker.
type BreakerSettings struct {
	Name      string
	Threshold uint32        // consecutive failures before the breaker opens
	Timeout   time.Duration // how long the breaker stays open
}

// breakerStore short-circuits calls while the backing store is failing. An open breaker
// returns ErrUnavailable, so callers still fail closed; they just fail faster.
type breakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker wraps next in a circuit breaker.
func WithBreaker(next Store, s BreakerSettings, log *zap.SugaredLogger) Store {
	if s.Threshold == 0 {
		s.Threshold = 5
	}
	if s.Timeout <= 0 {
		s.Timeout = 10 * time.Second
	}
	if s.Name == "" {
		s.Name = "kv"
	}
	settings := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.Threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("kv breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// a miss is an answer, not an outage
			return err == nil || errors.Is(err, ErrNotFound)
		},
	}
	return &breakerStore{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func run[T any](b *breakerStore, fn func() (T, error)) (T, error) {
	v, err := b.cb.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return zero, err
	}
	return v.(T), nil
}

func (b *breakerStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return run(b, func() (bool, error) { return b.next.SetNX(ctx, key, value, ttl) })
}

func (b *breakerStore) Get(ctx context.Context, key string) (string, error) {
	return run(b, func() (string, error) { return b.next.Get(ctx, key) })
}

func (b *breakerStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := run(b, func() (struct{}, error) { return struct{}{}, b.next.Set(ctx, key, value, ttl) })
	return err
}

func (b *breakerStore) Del(ctx context.Context, keys ...string) error {
	_, err := run(b, func() (struct{}, error) { return struct{}{}, b.next.Del(ctx, keys...) })
	return err
}

func (b *breakerStore) IncrBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (Counter, error) {
	return run(b, func() (Counter, error) { return b.next.IncrBelow(ctx, key, limit, ttl) })
}

func (b *breakerStore) SAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	_, err := run(b, func() (struct{}, error) { return struct{}{}, b.next.SAdd(ctx, key, ttl, members...) })
	return err
}

func (b *breakerStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return run(b, func() ([]string, error) { return b.next.SMembers(ctx, key) })
}

func (b *breakerStore) SRem(ctx context.Context, key string, members ...string) error {
	_, err := run(b, func() (struct{}, error) { return struct{}{}, b.next.SRem(ctx, key, members...) })
	return err
}

func (b *breakerStore) Ping(ctx context.Context) error {
	_, err := run(b, func() (struct{}, error) { return struct{}{}, b.next.Ping(ctx) })
	return err
}
