package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrBelowScript checks and increments in one server-side step so two concurrent
// callers can never both observe a stale sub-limit count.
var incrBelowScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= tonumber(ARGV[1]) then
  local left = redis.call("PTTL", KEYS[1])
  return {current, left, 0}
end
current = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  ttl = tonumber(ARGV[2])
end
return {current, ttl, 1}
`)

// RedisStore wraps go-redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns a store over client. prefix namespaces every key (e.g. "tg:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(key), value, ttl).Result()
	if err != nil {
		return false, unavailable("setnx", err)
	}
	return ok, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	res, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", unavailable("get", err)
	}
	return res, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}

func (s *RedisStore) IncrBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (Counter, error) {
	vals, err := incrBelowScript.Run(ctx, s.client, []string{s.key(key)}, limit, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return Counter{}, unavailable("incr", err)
	}
	if len(vals) < 3 {
		return Counter{}, unavailable("incr", fmt.Errorf("unexpected script reply %v", vals))
	}
	left := time.Duration(vals[1]) * time.Millisecond
	if left < 0 {
		left = ttl
	}
	return Counter{Count: vals[0], TTL: left, Allowed: vals[2] == 1}, nil
}

func (s *RedisStore) SAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, s.key(key), args...)
		if ttl > 0 {
			p.PExpire(ctx, s.key(key), ttl)
		}
		return nil
	})
	if err != nil {
		return unavailable("sadd", err)
	}
	return nil
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	res, err := s.client.SMembers(ctx, s.key(key)).Result()
	if err != nil {
		return nil, unavailable("smembers", err)
	}
	return res, nil
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SRem(ctx, s.key(key), args...).Err(); err != nil {
		return unavailable("srem", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}
