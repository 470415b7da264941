package kv

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is a single-process TTL store for dev mode and tests.
// Every operation holds one lock, which gives SetNX and IncrBelow the same atomicity as the Redis script.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memItem
	now   func() time.Time
}

type memItem struct {
	value     string
	set       map[string]struct{}
	expiresAt time.Time // zero = no expiry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]memItem{}, now: time.Now}
}

// WithClock swaps the time source; tests use it to expire entries without sleeping.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	return m
}

func (m *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

// liveLocked returns the item if present and not expired, dropping it otherwise.
func (m *MemoryStore) liveLocked(key string) (memItem, bool) {
	it, ok := m.items[key]
	if !ok {
		return memItem{}, false
	}
	if !it.expiresAt.IsZero() && !m.now().Before(it.expiresAt) {
		delete(m.items, key)
		return memItem{}, false
	}
	return it, true
}

func (m *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.liveLocked(key); ok {
		return false, nil
	}
	m.items[key] = memItem{value: value, expiresAt: m.expiry(ttl)}
	return true, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.liveLocked(key)
	if !ok || it.set != nil {
		return "", ErrNotFound
	}
	return it.value, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memItem{value: value, expiresAt: m.expiry(ttl)}
	return nil
}

func (m *MemoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func (m *MemoryStore) IncrBelow(_ context.Context, key string, limit int64, ttl time.Duration) (Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.liveLocked(key)
	var count int64
	if ok {
		count, _ = strconv.ParseInt(it.value, 10, 64)
	} else {
		it = memItem{expiresAt: m.expiry(ttl)}
	}
	left := ttl
	if !it.expiresAt.IsZero() {
		left = it.expiresAt.Sub(m.now())
	}
	if count >= limit {
		return Counter{Count: count, TTL: left, Allowed: false}, nil
	}
	count++
	it.value = strconv.FormatInt(count, 10)
	m.items[key] = it
	return Counter{Count: count, TTL: left, Allowed: true}, nil
}

func (m *MemoryStore) SAdd(_ context.Context, key string, ttl time.Duration, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.liveLocked(key)
	if !ok || it.set == nil {
		it = memItem{set: map[string]struct{}{}}
	}
	for _, mem := range members {
		it.set[mem] = struct{}{}
	}
	if ttl > 0 {
		it.expiresAt = m.expiry(ttl)
	}
	m.items[key] = it
	return nil
}

func (m *MemoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.liveLocked(key)
	if !ok || it.set == nil {
		return []string{}, nil
	}
	out := make([]string, 0, len(it.set))
	for mem := range it.set {
		out = append(out, mem)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.liveLocked(key)
	if !ok || it.set == nil {
		return nil
	}
	for _, mem := range members {
		delete(it.set, mem)
	}
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
