// Package ratelimit enforces fixed-window per-tenant request limits on the shared key-value store.
// Bursts straddling a window boundary can briefly exceed the nominal rate.
package ratelimit

import (
	"context"
	"time"

	"tenantgate/pkg/kv"
	"tenantgate/pkg/metrics"
	"tenantgate/pkg/problems"
)

const (
	DefaultLimit  int64 = 100
	DefaultWindow       = 60 * time.Second
)

type Decision struct {
	Allowed   bool
	Count     int64
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

type Limiter struct {
	store  kv.Store
	limit  int64
	window time.Duration
	now    func() time.Time
}

func New(store kv.Store, limit int64, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{store: store, limit: limit, window: window, now: time.Now}
}

// WithClock replaces the time source used for ResetAt.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check applies the default limit and window.
func (l *Limiter) Check(ctx context.Context, tenantID string) (Decision, error) {
	return l.CheckWith(ctx, tenantID, l.limit, l.window)
}

// CheckWith counts one request for tenantID. At or above limit it returns RateLimitExceeded with
// RetryAfter = window and leaves the counter unchanged. A store failure rejects the request.
func (l *Limiter) CheckWith(ctx context.Context, tenantID string, limit int64, window time.Duration) (Decision, error) {
	if limit <= 0 {
		limit = l.limit
	}
	if window <= 0 {
		window = l.window
	}
	c, err := l.store.IncrBelow(ctx, "rate:"+tenantID, limit, window)
	if err != nil {
		return Decision{}, problems.Wrap(problems.StoreUnavailable, "rate counter store unavailable", err)
	}
	d := Decision{
		Allowed:   c.Allowed,
		Count:     c.Count,
		Limit:     limit,
		Remaining: limit - c.Count,
		ResetAt:   l.now().Add(c.TTL),
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !c.Allowed {
		metrics.RateLimited.Inc()
		rej := problems.New(problems.RateLimitExceeded, "rate limit exceeded")
		rej.RetryAfter = window
		return d, rej
	}
	return d, nil
}
