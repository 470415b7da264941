// Package replay rejects stale timestamps and reused nonces for signed requests.
package replay

import (
	"context"
	"strconv"
	"strings"
	"time"

	"tenantgate/pkg/kv"
	"tenantgate/pkg/metrics"
	"tenantgate/pkg/problems"
)

const DefaultTolerance = 300 * time.Second

// Guard checks timestamp skew and records nonces. Nonce markers live for twice the tolerance, which
// covers a timestamp up to tolerance in the future being replayed until it falls out of the window.
type Guard struct {
	store     kv.Store
	tolerance time.Duration
	now       func() time.Time
}

func NewGuard(store kv.Store, tolerance time.Duration) *Guard {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Guard{store: store, tolerance: tolerance, now: time.Now}
}

// WithClock replaces the time source.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

func (g *Guard) Tolerance() time.Duration { return g.tolerance }

// ParseTimestamp accepts RFC 3339 (with or without fractional seconds) or unix seconds.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}

// CheckTimestamp rejects timestamps further than the tolerance from now, in either direction.
// It never touches nonce state.
func (g *Guard) CheckTimestamp(ts string) (time.Time, error) {
	t, err := ParseTimestamp(ts)
	if err != nil {
		return time.Time{}, problems.Wrap(problems.InvalidSignature, "timestamp must be ISO-8601", err)
	}
	skew := g.now().Sub(t)
	if skew < 0 {
		skew = -skew
	}
	if skew > g.tolerance {
		return time.Time{}, problems.New(problems.ReplayDetected, "timestamp outside tolerance window")
	}
	return t, nil
}

// Record marks (tenantID, nonce) as used in one atomic step. A second call with the same pair
// inside the marker TTL is a replay.
func (g *Guard) Record(ctx context.Context, tenantID, nonce string) error {
	nonce = strings.TrimSpace(nonce)
	if nonce == "" {
		return problems.New(problems.InvalidSignature, "nonce required")
	}
	ok, err := g.store.SetNX(ctx, nonceKey(tenantID, nonce), "1", 2*g.tolerance)
	if err != nil {
		return problems.Wrap(problems.StoreUnavailable, "replay store unavailable", err)
	}
	if !ok {
		metrics.ReplaysBlocked.Inc()
		return problems.New(problems.ReplayDetected, "nonce already used")
	}
	return nil
}

func nonceKey(tenantID, nonce string) string {
	return "nonce:" + strings.TrimSpace(tenantID) + ":" + nonce
}
