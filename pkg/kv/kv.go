// Package kv is the TTL key-value store shared by every gateway instance: nonce markers,
// rate counters, sessions and tenant-context cache entries all live here.
package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key is absent or expired.
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnavailable marks failures of the backing store itself. Callers fail closed on it.
	ErrUnavailable = errors.New("kv: store unavailable")
)

// Counter is the outcome of an atomic check-and-increment.
type Counter struct {
	Count   int64         // counter value after the call
	TTL     time.Duration // remaining lifetime of the window
	Allowed bool          // false when the counter was already at the limit and was left untouched
}

// Store is implemented by RedisStore and MemoryStore. A ttl of 0 means no expiry.
type Store interface {
	// SetNX records key only if absent, as one indivisible operation.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// IncrBelow increments key unless it is already >= limit. A new counter starts with the given ttl.
	IncrBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (Counter, error)
	// SAdd adds members to a set and (re)arms the set's ttl.
	SAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SRem(ctx context.Context, key string, members ...string) error
	Ping(ctx context.Context) error
}
