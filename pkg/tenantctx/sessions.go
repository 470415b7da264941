package tenantctx

import (
	"context"
	"encoding/json"
	"errors"

	"tenantgate/pkg/kv"
)

// TouchSession creates the session or refreshes its lastActivity, rearming its ttl either way.
// A new session id is added to the tenant's index and the cached context is invalidated so the
// next Get reports it.
func (s *Store) TouchSession(ctx context.Context, sess Session) (Session, error) {
	now := s.now().UTC()
	key := sessionKey(sess.TenantID, sess.SessionID)

	existing, err := s.GetSession(ctx, sess.TenantID, sess.SessionID)
	isNew := errors.Is(err, ErrSessionNotFound)
	switch {
	case err == nil:
		sess.CreatedAt = existing.CreatedAt
		if sess.SiteID == "" {
			sess.SiteID = existing.SiteID
		}
		if sess.Channel == "" {
			sess.Channel = existing.Channel
		}
	case isNew:
		sess.CreatedAt = now
	default:
		return Session{}, err
	}
	sess.LastActivity = now

	raw, err := json.Marshal(sess)
	if err != nil {
		return Session{}, err
	}
	if err := s.cache.Set(ctx, key, string(raw), s.sessionTTL); err != nil {
		return Session{}, err
	}
	if isNew {
		if err := s.cache.SAdd(ctx, sessionsKey(sess.TenantID), s.sessionTTL, sess.SessionID); err != nil {
			return Session{}, err
		}
		if err := s.cache.Del(ctx, contextKey(sess.TenantID)); err != nil {
			s.log.Warnw("context cache invalidate failed", "tenantId", sess.TenantID, "err", err)
		}
	}
	return sess, nil
}

// GetSession returns ErrSessionNotFound once a session has expired or been evicted.
func (s *Store) GetSession(ctx context.Context, tenantID, sessionID string) (Session, error) {
	raw, err := s.cache.Get(ctx, sessionKey(tenantID, sessionID))
	if errors.Is(err, kv.ErrNotFound) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// liveSessionIDs reads the tenant's session index and prunes ids whose session record has expired.
// Ids whose record cannot be read are kept; the next read retries them.
func (s *Store) liveSessionIDs(ctx context.Context, tenantID string) ([]string, error) {
	ids, err := s.cache.SMembers(ctx, sessionsKey(tenantID))
	if err != nil {
		return nil, err
	}
	live := make([]string, 0, len(ids))
	var gone []string
	for _, id := range ids {
		_, err := s.GetSession(ctx, tenantID, id)
		if errors.Is(err, ErrSessionNotFound) {
			gone = append(gone, id)
			continue
		}
		live = append(live, id)
	}
	if len(gone) > 0 {
		if err := s.cache.SRem(ctx, sessionsKey(tenantID), gone...); err != nil {
			s.log.Warnw("session index prune failed", "tenantId", tenantID, "err", err)
		}
	}
	return live, nil
}
