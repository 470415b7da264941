package tenantctx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jmes "github.com/jmespath/go-jmespath"
	"go.uber.org/zap"

	"tenantgate/pkg/kv"
	"tenantgate/pkg/metrics"
)

const (
	DefaultCacheTTL   = time.Hour
	DefaultSessionTTL = 24 * time.Hour
)

// Store is the cache-aside front for Repository. Durable storage is the source of truth; a cached copy may be
// stale for up to the cache TTL on other instances, since nothing broadcasts invalidations.
type Store struct {
	repo       Repository
	cache      kv.Store
	cacheTTL   time.Duration
	sessionTTL time.Duration
	log        *zap.SugaredLogger
	now        func() time.Time
}

type Options struct {
	CacheTTL   time.Duration
	SessionTTL time.Duration
	Now        func() time.Time
}

func NewStore(repo Repository, cache kv.Store, opts Options, log *zap.SugaredLogger) *Store {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{repo: repo, cache: cache, cacheTTL: opts.CacheTTL, sessionTTL: opts.SessionTTL, log: log, now: opts.Now}
}

func contextKey(tenantID string) string { return "tenantctx:" + tenantID }
func sessionsKey(tenantID string) string { return "tenantctx:" + tenantID + ":sessions" }
func sessionKey(tenantID, sessionID string) string {
	return "session:" + tenantID + ":" + sessionID
}

// Get returns the tenant context, loading it from durable storage on a cache miss.
func (s *Store) Get(ctx context.Context, tenantID string) (Context, error) {
	raw, err := s.cache.Get(ctx, contextKey(tenantID))
	switch {
	case err == nil:
		var c Context
		if jerr := json.Unmarshal([]byte(raw), &c); jerr == nil {
			metrics.ContextCache.WithLabelValues("hit").Inc()
			return c, nil
		}
		s.log.Warnw("dropping undecodable context cache entry", "tenantId", tenantID)
		_ = s.cache.Del(ctx, contextKey(tenantID))
		metrics.ContextCache.WithLabelValues("miss").Inc()
	case errors.Is(err, kv.ErrNotFound):
		metrics.ContextCache.WithLabelValues("miss").Inc()
	default:
		metrics.ContextCache.WithLabelValues("error").Inc()
		s.log.Warnw("context cache read failed; reading durable store", "tenantId", tenantID, "err", err)
	}

	c, err := s.repo.Load(ctx, tenantID)
	if err != nil {
		return Context{}, err
	}
	ids, err := s.liveSessionIDs(ctx, tenantID)
	if err != nil {
		s.log.Warnw("session index read failed", "tenantId", tenantID, "err", err)
		ids = nil
	}
	c.SessionIDs = ids
	s.populate(ctx, c)
	return c, nil
}

// Update deep-merges partial into the stored context, bumps metadata.updatedAt and writes through to the cache.
func (s *Store) Update(ctx context.Context, tenantID string, partial map[string]any) (Context, error) {
	c, err := s.repo.Mutate(ctx, tenantID, func(c *Context) error {
		if err := applyPartial(c, partial); err != nil {
			return err
		}
		c.Metadata.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return Context{}, err
	}
	if ids, err := s.liveSessionIDs(ctx, tenantID); err == nil {
		c.SessionIDs = ids
	}
	s.populate(ctx, c)
	return c, nil
}

// Initialize creates the context from seed unless one already exists, in which case the existing
// context is returned untouched and created is false.
func (s *Store) Initialize(ctx context.Context, tenantID string, seed map[string]any) (Context, bool, error) {
	existing, err := s.Get(ctx, tenantID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Context{}, false, err
	}

	now := s.now().UTC()
	c := Context{TenantID: tenantID, Metadata: Metadata{CreatedAt: now, UpdatedAt: now}}
	if err := applyPartial(&c, seed); err != nil {
		return Context{}, false, err
	}
	created, err := s.repo.Insert(ctx, c)
	if err != nil {
		return Context{}, false, err
	}
	if !created {
		// lost a race with another initializer
		existing, err := s.Get(ctx, tenantID)
		return existing, false, err
	}
	s.populate(ctx, c)
	s.log.Infow("tenant context initialized", "tenantId", tenantID)
	return c, true, nil
}

// Delete removes the context from durable storage and the cache, along with the session index.
func (s *Store) Delete(ctx context.Context, tenantID string) error {
	if err := s.repo.Delete(ctx, tenantID); err != nil {
		return err
	}
	if err := s.cache.Del(ctx, contextKey(tenantID), sessionsKey(tenantID)); err != nil {
		s.log.Warnw("context cache delete failed; entry expires with its ttl", "tenantId", tenantID, "err", err)
	}
	return nil
}

// Select evaluates a JMESPath expression over the tenant context document.
func (s *Store) Select(ctx context.Context, tenantID, expr string) (any, error) {
	c, err := s.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	res, err := jmes.Search(expr, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	return res, nil
}

// populate writes c to the cache. If that fails the stale entry is removed so the next read goes durable.
func (s *Store) populate(ctx context.Context, c Context) {
	raw, err := json.Marshal(c)
	if err == nil {
		err = s.cache.Set(ctx, contextKey(c.TenantID), string(raw), s.cacheTTL)
	}
	if err == nil {
		return
	}
	s.log.Warnw("context cache write failed", "tenantId", c.TenantID, "err", err)
	if derr := s.cache.Del(ctx, contextKey(c.TenantID)); derr != nil {
		s.log.Warnw("context cache invalidate failed; entry expires with its ttl", "tenantId", c.TenantID, "err", derr)
	}
}
