// Package tokens mints and validates HS256 capability tokens and keeps their revocation registry.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"

	"tenantgate/pkg/metrics"
	"tenantgate/pkg/problems"
)

const (
	claimTenantID    = "tenantId"
	claimSiteID      = "siteId"
	claimOrigin      = "origin"
	claimPermissions = "permissions"
)

type Options struct {
	SigningKey []byte
	Issuer     string
	DefaultTTL time.Duration
	Now        func() time.Time
}

// Issuer mints tokens and checks them against the registry.
type Issuer struct {
	key        []byte
	issuer     string
	defaultTTL time.Duration
	reg        Registry
	log        *zap.SugaredLogger
	now        func() time.Time
}

func NewIssuer(reg Registry, opts Options, log *zap.SugaredLogger) *Issuer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = time.Hour
	}
	return &Issuer{key: opts.SigningKey, issuer: opts.Issuer, defaultTTL: opts.DefaultTTL, reg: reg, log: log, now: opts.Now}
}

// IssueRequest describes a token to mint. TTL may be nil (default), a second count, or "<int><s|m|h|d>".
type IssueRequest struct {
	TenantID    string
	SiteID      string
	Origin      string
	Permissions []string
	TTL         any
}

// Issued is a freshly minted token. Token is only ever returned here.
type Issued struct {
	Token  string
	Claims Claims
}

// Issue signs a token and registers its jti. If the registry write fails the token is discarded.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (Issued, error) {
	if req.TenantID == "" || req.SiteID == "" {
		return Issued{}, fmt.Errorf("%w: tenantId and siteId are required", ErrInvalidRequest)
	}
	ttl := i.defaultTTL
	if req.TTL != nil {
		d, err := ParseTTL(req.TTL)
		if err != nil {
			return Issued{}, err
		}
		ttl = d
	}
	perms := req.Permissions
	if perms == nil {
		perms = []string{}
	}

	now := i.now().Truncate(time.Second)
	claims := Claims{
		JTI:         uuid.NewString(),
		TenantID:    req.TenantID,
		SiteID:      req.SiteID,
		Origin:      req.Origin,
		Permissions: perms,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}

	b := jwt.NewBuilder().
		JwtID(claims.JTI).
		IssuedAt(claims.IssuedAt).
		Expiration(claims.ExpiresAt).
		Claim(claimTenantID, claims.TenantID).
		Claim(claimSiteID, claims.SiteID).
		Claim(claimOrigin, claims.Origin).
		Claim(claimPermissions, claims.Permissions)
	if i.issuer != "" {
		b = b.Issuer(i.issuer)
	}
	tok, err := b.Build()
	if err != nil {
		return Issued{}, problems.Wrap(problems.IssuanceFailed, "could not build token", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, i.key))
	if err != nil {
		return Issued{}, problems.Wrap(problems.IssuanceFailed, "could not sign token", err)
	}

	rec := Record{
		JTI: claims.JTI, TenantID: claims.TenantID, SiteID: claims.SiteID, Origin: claims.Origin,
		Permissions: claims.Permissions, IssuedAt: claims.IssuedAt, ExpiresAt: claims.ExpiresAt,
	}
	if err := i.reg.Register(ctx, rec); err != nil {
		i.log.Errorw("token registry write failed; token discarded", "tenantId", req.TenantID, "jti", claims.JTI, "err", err)
		return Issued{}, problems.Wrap(problems.IssuanceFailed, "token registry unavailable", err)
	}
	metrics.TokensIssued.Inc()
	i.log.Infow("token issued", "tenantId", claims.TenantID, "siteId", claims.SiteID, "jti", claims.JTI, "exp", claims.ExpiresAt)
	return Issued{Token: string(signed), Claims: claims}, nil
}

// Validate checks signature, required claims, expiry and registry status, in that order.
func (i *Issuer) Validate(ctx context.Context, raw string) (Claims, error) {
	tok, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.HS256, i.key), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, problems.Wrap(problems.InvalidToken, "token signature invalid", err)
	}

	claims, err := claimsFrom(tok)
	if err != nil {
		return Claims{}, problems.Wrap(problems.InvalidToken, "token claims incomplete", err)
	}
	if i.issuer != "" && tok.Issuer() != i.issuer {
		return Claims{}, problems.New(problems.InvalidToken, "token issuer mismatch")
	}

	if !i.now().Before(claims.ExpiresAt) {
		return Claims{}, problems.New(problems.ExpiredToken, "token expired")
	}

	rec, err := i.reg.Lookup(ctx, claims.JTI)
	switch {
	case errors.Is(err, ErrUnknownToken):
		return Claims{}, problems.New(problems.InvalidToken, "token not recognised")
	case err != nil:
		i.log.Warnw("token registry lookup failed", "jti", claims.JTI, "err", err)
		return Claims{}, problems.Wrap(problems.StoreUnavailable, "token registry unavailable", err)
	}
	if rec.TenantID != claims.TenantID {
		return Claims{}, problems.New(problems.InvalidToken, "token does not match its registry entry")
	}
	if rec.Revoked {
		return Claims{}, problems.New(problems.RevokedToken, "token revoked")
	}
	return claims, nil
}

// Revoke flips the registry entry for jti; the next Validate rejects it.
func (i *Issuer) Revoke(ctx context.Context, jti, reason string) error {
	if err := i.reg.Revoke(ctx, jti, reason, i.now()); err != nil {
		if errors.Is(err, ErrUnknownToken) {
			return err
		}
		return problems.Wrap(problems.StoreUnavailable, "token registry unavailable", err)
	}
	metrics.TokensRevoked.Inc()
	i.log.Infow("token revoked", "jti", jti, "reason", reason)
	return nil
}

// PurgeExpired drops registry rows that expired before now minus grace.
func (i *Issuer) PurgeExpired(ctx context.Context, grace time.Duration) (int64, error) {
	n, err := i.reg.PurgeExpired(ctx, i.now().Add(-grace))
	if err != nil {
		return 0, err
	}
	metrics.TokensPurged.Add(float64(n))
	return n, nil
}

func claimsFrom(tok jwt.Token) (Claims, error) {
	c := Claims{JTI: tok.JwtID(), IssuedAt: tok.IssuedAt(), ExpiresAt: tok.Expiration()}
	if c.JTI == "" {
		return Claims{}, errors.New("missing jti")
	}
	if c.ExpiresAt.IsZero() {
		return Claims{}, errors.New("missing exp")
	}
	if c.IssuedAt.IsZero() {
		return Claims{}, errors.New("missing iat")
	}
	var err error
	if c.TenantID, err = stringClaim(tok, claimTenantID, true); err != nil {
		return Claims{}, err
	}
	if c.SiteID, err = stringClaim(tok, claimSiteID, true); err != nil {
		return Claims{}, err
	}
	if c.Origin, err = stringClaim(tok, claimOrigin, false); err != nil {
		return Claims{}, err
	}
	raw, ok := tok.Get(claimPermissions)
	if !ok {
		return Claims{}, errors.New("missing permissions")
	}
	switch v := raw.(type) {
	case []interface{}:
		c.Permissions = make([]string, 0, len(v))
		for _, p := range v {
			s, ok := p.(string)
			if !ok {
				return Claims{}, errors.New("permissions must be strings")
			}
			c.Permissions = append(c.Permissions, s)
		}
	case []string:
		c.Permissions = v
	default:
		return Claims{}, fmt.Errorf("permissions has type %T", raw)
	}
	return c, nil
}

func stringClaim(tok jwt.Token, name string, nonEmpty bool) (string, error) {
	raw, ok := tok.Get(name)
	if !ok {
		return "", fmt.Errorf("missing %s", name)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", name)
	}
	if nonEmpty && s == "" {
		return "", fmt.Errorf("empty %s", name)
	}
	return s, nil
}
