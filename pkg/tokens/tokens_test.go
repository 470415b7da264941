package tokens

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tenantgate/pkg/problems"
)

var testKey = []byte("test-signing-key-0123456789abcdef")

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock { return &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)} }

func newIssuer(reg Registry, c *clock) *Issuer {
	return NewIssuer(reg, Options{SigningKey: testKey, Issuer: "tenantgate", Now: c.now}, zap.NewNop().Sugar())
}

func TestIssueValidateRevoke_Acme(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	iss := newIssuer(NewMemoryRegistry(), c)

	out, err := iss.Issue(ctx, IssueRequest{
		TenantID: "acme", SiteID: "acme-site", Origin: "https://acme.example",
		Permissions: []string{"read", "write"}, TTL: 3600,
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.Token)

	claims, err := iss.Validate(ctx, out.Token)
	require.NoError(t, err)
	assert.Equal(t, "acme", claims.TenantID)
	assert.Equal(t, "acme-site", claims.SiteID)
	assert.Equal(t, []string{"read", "write"}, claims.Permissions)
	assert.Equal(t, out.Claims.JTI, claims.JTI)
	assert.True(t, c.t.Add(time.Hour).Equal(claims.ExpiresAt))

	require.NoError(t, iss.Revoke(ctx, claims.JTI, "compromised"))
	_, err = iss.Validate(ctx, out.Token)
	assert.True(t, problems.IsKind(err, problems.RevokedToken), "got %v", err)

	// second revoke is a no-op
	require.NoError(t, iss.Revoke(ctx, claims.JTI, "again"))
}

func TestValidate_Expired(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	iss := newIssuer(NewMemoryRegistry(), c)

	out, err := iss.Issue(ctx, IssueRequest{TenantID: "acme", SiteID: "s", TTL: "1m"})
	require.NoError(t, err)

	c.advance(59 * time.Second)
	_, err = iss.Validate(ctx, out.Token)
	require.NoError(t, err)

	c.advance(time.Second)
	_, err = iss.Validate(ctx, out.Token)
	assert.True(t, problems.IsKind(err, problems.ExpiredToken), "got %v", err)
}

func TestValidate_BadSignature(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	iss := newIssuer(NewMemoryRegistry(), c)
	out, err := iss.Issue(ctx, IssueRequest{TenantID: "acme", SiteID: "s"})
	require.NoError(t, err)

	other := NewIssuer(NewMemoryRegistry(), Options{SigningKey: []byte("another-key"), Now: c.now}, zap.NewNop().Sugar())
	_, err = other.Validate(ctx, out.Token)
	assert.True(t, problems.IsKind(err, problems.InvalidToken))

	parts := strings.Split(out.Token, ".")
	require.Len(t, parts, 3)
	forged, err := other.signWith(out.Claims)
	require.NoError(t, err)
	tampered := parts[0] + "." + parts[1] + "." + strings.Split(forged, ".")[2]
	_, err = iss.Validate(ctx, tampered)
	assert.True(t, problems.IsKind(err, problems.InvalidToken))

	_, err = iss.Validate(ctx, "not-a-jwt")
	assert.True(t, problems.IsKind(err, problems.InvalidToken))
}

func (i *Issuer) signWith(c Claims) (string, error) {
	tok, err := jwt.NewBuilder().JwtID(c.JTI).Expiration(c.ExpiresAt).Claim("tenantId", c.TenantID).Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, i.key))
	return string(signed), err
}

func signRaw(t *testing.T, build func(*jwt.Builder) *jwt.Builder) string {
	t.Helper()
	tok, err := build(jwt.NewBuilder()).Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, testKey))
	require.NoError(t, err)
	return string(signed)
}

func TestValidate_MissingClaims(t *testing.T) {
	c := newClock()
	iss := NewIssuer(NewMemoryRegistry(), Options{SigningKey: testKey, Now: c.now}, zap.NewNop().Sugar())
	raw := signRaw(t, func(b *jwt.Builder) *jwt.Builder {
		return b.JwtID("j1").IssuedAt(c.t).Expiration(c.t.Add(time.Hour)).Claim("siteId", "s").Claim("permissions", []string{})
	})
	_, err := iss.Validate(context.Background(), raw)
	assert.True(t, problems.IsKind(err, problems.InvalidToken), "missing tenantId, got %v", err)
}

func TestValidate_UnregisteredJTI(t *testing.T) {
	c := newClock()
	iss := NewIssuer(NewMemoryRegistry(), Options{SigningKey: testKey, Now: c.now}, zap.NewNop().Sugar())
	raw := signRaw(t, func(b *jwt.Builder) *jwt.Builder {
		return b.JwtID("forged").IssuedAt(c.t).Expiration(c.t.Add(time.Hour)).
			Claim("tenantId", "acme").Claim("siteId", "s").Claim("origin", "").Claim("permissions", []string{"read"})
	})
	_, err := iss.Validate(context.Background(), raw)
	assert.True(t, problems.IsKind(err, problems.InvalidToken), "got %v", err)
}

type brokenRegistry struct {
	Registry
	failRegister, failLookup bool
}

func (b *brokenRegistry) Register(ctx context.Context, rec Record) error {
	if b.failRegister {
		return errors.New("db down")
	}
	return b.Registry.Register(ctx, rec)
}

func (b *brokenRegistry) Lookup(ctx context.Context, jti string) (Record, error) {
	if b.failLookup {
		return Record{}, errors.New("db down")
	}
	return b.Registry.Lookup(ctx, jti)
}

func TestIssue_RegistryFailureDiscardsToken(t *testing.T) {
	reg := &brokenRegistry{Registry: NewMemoryRegistry(), failRegister: true}
	iss := newIssuer(reg, newClock())
	out, err := iss.Issue(context.Background(), IssueRequest{TenantID: "acme", SiteID: "s"})
	assert.True(t, problems.IsKind(err, problems.IssuanceFailed))
	assert.Empty(t, out.Token)
}

func TestValidate_RegistryFailureFailsClosed(t *testing.T) {
	reg := &brokenRegistry{Registry: NewMemoryRegistry()}
	iss := newIssuer(reg, newClock())
	out, err := iss.Issue(context.Background(), IssueRequest{TenantID: "acme", SiteID: "s"})
	require.NoError(t, err)

	reg.failLookup = true
	_, err = iss.Validate(context.Background(), out.Token)
	assert.True(t, problems.IsKind(err, problems.StoreUnavailable), "got %v", err)
}

func TestIssue_InvalidInput(t *testing.T) {
	iss := newIssuer(NewMemoryRegistry(), newClock())
	_, err := iss.Issue(context.Background(), IssueRequest{SiteID: "s"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = iss.Issue(context.Background(), IssueRequest{TenantID: "a", SiteID: "s", TTL: "5w"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRevoke_Unknown(t *testing.T) {
	iss := newIssuer(NewMemoryRegistry(), newClock())
	assert.ErrorIs(t, iss.Revoke(context.Background(), "nope", ""), ErrUnknownToken)
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	iss := newIssuer(NewMemoryRegistry(), c)
	_, err := iss.Issue(ctx, IssueRequest{TenantID: "a", SiteID: "s", TTL: "1m"})
	require.NoError(t, err)
	keep, err := iss.Issue(ctx, IssueRequest{TenantID: "a", SiteID: "s", TTL: "1d"})
	require.NoError(t, err)

	c.advance(2 * time.Hour)
	n, err := iss.PurgeExpired(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = iss.Validate(ctx, keep.Token)
	assert.NoError(t, err)
}

func TestParseTTL(t *testing.T) {
	cases := []struct {
		in   any
		want time.Duration
		ok   bool
	}{
		{3600, time.Hour, true},
		{float64(90), 90 * time.Second, true},
		{"120", 2 * time.Minute, true},
		{"30s", 30 * time.Second, true},
		{"15m", 15 * time.Minute, true},
		{"2h", 2 * time.Hour, true},
		{"7d", 7 * 24 * time.Hour, true},
		{"0", 0, false},
		{-5, 0, false},
		{1.5, 0, false},
		{"1.5h", 0, false},
		{"h", 0, false},
		{true, 0, false},
		{int64(1) << 62, 0, false},
		{"10000000000000s", 0, false},
		{"9223372036854775807", 0, false},
		{"200000000000d", 0, false},
		{"99999999999999999999s", 0, false},
		{float64(1e19), 0, false},
		{maxTTLSeconds, time.Duration(maxTTLSeconds) * time.Second, true},
	}
	for _, tc := range cases {
		got, err := ParseTTL(tc.in)
		if !tc.ok {
			assert.ErrorIs(t, err, ErrInvalidRequest, "input %v", tc.in)
			continue
		}
		require.NoError(t, err, "input %v", tc.in)
		assert.Equal(t, tc.want, got, "input %v", tc.in)
	}
}

func TestIssue_HugeTTLRejected(t *testing.T) {
	iss := newIssuer(NewMemoryRegistry(), newClock())
	out, err := iss.Issue(context.Background(), IssueRequest{TenantID: "a", SiteID: "s", TTL: int64(1) << 62})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, out.Token)
}

func TestHasPermissions(t *testing.T) {
	c := Claims{Permissions: []string{"read", "write"}}
	assert.True(t, HasPermissions(c, "read"))
	assert.True(t, HasPermissions(c, "read", "write"))
	assert.True(t, HasPermissions(c))
	assert.False(t, HasPermissions(c, "admin"))
	assert.False(t, HasPermissions(Claims{}, "read"))
}
