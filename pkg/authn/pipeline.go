package authn

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"tenantgate/pkg/metrics"
	"tenantgate/pkg/problems"
	"tenantgate/pkg/ratelimit"
	"tenantgate/pkg/tenantctx"
	"tenantgate/pkg/tenants"
	"tenantgate/pkg/tokens"
)

const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"
	HeaderChannel   = "X-Channel"
	HeaderSessionID = "X-Session-Id"

	DefaultChannel      = "web"
	DefaultMaxBodyBytes = 1 << 20
)

type TokenValidator interface {
	Validate(ctx context.Context, raw string) (tokens.Claims, error)
}

type RateChecker interface {
	CheckWith(ctx context.Context, tenantID string, limit int64, window time.Duration) (ratelimit.Decision, error)
}

type SignatureValidator interface {
	ValidateEnhanced(ctx context.Context, body []byte, sig, tenantID, timestamp, nonce string) error
}

type SessionToucher interface {
	TouchSession(ctx context.Context, sess tenantctx.Session) (tenantctx.Session, error)
}

// Deps are the pipeline's collaborators. Tenants is optional; when set it vets the token's site and tenant
// status and supplies per-tenant rate limits.
type Deps struct {
	Tokens     TokenValidator
	Limiter    RateChecker
	Signatures SignatureValidator
	Sessions   SessionToucher
	Tenants    tenants.Provider
}

type Options struct {
	MaxBodyBytes int64
}

// Pipeline runs bearer extraction, token validation, rate limiting, signature validation (mutating
// methods only) and session resolution. The first failing stage ends the request.
type Pipeline struct {
	deps    Deps
	maxBody int64
	log     *zap.SugaredLogger
	tracer  trace.Tracer
}

func New(deps Deps, opts Options, log *zap.SugaredLogger) *Pipeline {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Pipeline{deps: deps, maxBody: opts.MaxBodyBytes, log: log, tracer: otel.Tracer("tenantgate/authn")}
}

// Authenticate returns the authenticated context or a *problems.Rejection. For mutating methods the
// request body is read and replaced with an equivalent reader.
func (p *Pipeline) Authenticate(r *http.Request) (*Context, error) {
	ac, _, err := p.authenticate(r)
	return ac, err
}

func (p *Pipeline) authenticate(r *http.Request) (*Context, ratelimit.Decision, error) {
	ctx, span := p.tracer.Start(r.Context(), "authn.authenticate")
	defer span.End()
	var decision ratelimit.Decision

	fail := func(err error) (*Context, ratelimit.Decision, error) {
		kind := problems.KindOf(err)
		if kind == "" {
			kind = problems.StoreUnavailable
			err = problems.Wrap(kind, "authentication dependency failed", err)
		}
		span.SetStatus(codes.Error, string(kind))
		span.SetAttributes(attribute.String("authn.rejection", string(kind)))
		return nil, decision, err
	}

	// 1. bearer
	raw, ok := bearer(r.Header.Get("Authorization"))
	if !ok {
		return fail(problems.New(problems.MissingCredentials, "bearer token required"))
	}

	// 2. token
	claims, err := p.deps.Tokens.Validate(ctx, raw)
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.String("tenant.id", claims.TenantID))

	// 3. rate limit
	limit, err := p.tenantLimit(ctx, claims)
	if err != nil {
		return fail(err)
	}
	decision, err = p.deps.Limiter.CheckWith(ctx, claims.TenantID, limit, 0)
	if err != nil {
		return fail(err)
	}

	// 4. signature on mutating methods
	if mutating(r.Method) {
		sig := r.Header.Get(HeaderSignature)
		ts := r.Header.Get(HeaderTimestamp)
		nonce := r.Header.Get(HeaderNonce)
		if sig == "" || ts == "" || nonce == "" {
			return fail(problems.New(problems.InvalidSignature, "X-Signature, X-Timestamp and X-Nonce are required"))
		}
		body, err := p.readBody(r)
		if err != nil {
			return fail(err)
		}
		if err := p.deps.Signatures.ValidateEnhanced(ctx, body, sig, claims.TenantID, ts, nonce); err != nil {
			return fail(err)
		}
	}

	// 5. channel and session
	channel := strings.TrimSpace(r.Header.Get(HeaderChannel))
	if channel == "" {
		channel = DefaultChannel
	}
	sessionID := strings.TrimSpace(r.Header.Get(HeaderSessionID))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if _, err := p.deps.Sessions.TouchSession(ctx, tenantctx.Session{
		SessionID: sessionID, TenantID: claims.TenantID, SiteID: claims.SiteID, Channel: channel,
	}); err != nil {
		return fail(problems.Wrap(problems.StoreUnavailable, "session store unavailable", err))
	}

	return &Context{
		TenantID:    claims.TenantID,
		SiteID:      claims.SiteID,
		Origin:      claims.Origin,
		Permissions: claims.Permissions,
		Channel:     channel,
		SessionID:   sessionID,
		TokenID:     claims.JTI,
	}, decision, nil
}

// tenantLimit resolves the token's site to its tenant and returns the tenant's rate-limit override,
// or 0 for the limiter default. A site owned by another tenant, or an inactive tenant, rejects the token.
// Sites the provider does not know use the default.
func (p *Pipeline) tenantLimit(ctx context.Context, claims tokens.Claims) (int64, error) {
	if p.deps.Tenants == nil {
		return 0, nil
	}
	t, err := p.deps.Tenants.ResolveTenantBySite(ctx, claims.SiteID)
	if errors.Is(err, tenants.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, problems.Wrap(problems.StoreUnavailable, "tenant lookup failed", err)
	}
	if t.ID != claims.TenantID {
		p.log.Warnw("token site belongs to another tenant", "tenantId", claims.TenantID, "siteId", claims.SiteID, "owner", t.ID)
		return 0, problems.New(problems.InvalidToken, "token site does not belong to its tenant")
	}
	if !t.Active {
		return 0, problems.New(problems.InvalidToken, "tenant is not active")
	}
	return t.RateLimit, nil
}

func (p *Pipeline) readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, p.maxBody+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, problems.Wrap(problems.InvalidSignature, "could not read request body", err)
	}
	if int64(len(body)) > p.maxBody {
		return nil, problems.New(problems.InvalidSignature, "request body exceeds signing limit")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// Middleware authenticates every request and attaches the Context; rejections are written as problem+json.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ac, decision, err := p.authenticate(r)
		if decision.Limit > 0 {
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		}
		if err != nil {
			kind := string(problems.KindOf(err))
			metrics.AuthOutcomes.WithLabelValues(kind).Inc()
			metrics.AuthDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
			if problems.KindOf(err) == problems.StoreUnavailable {
				p.log.Errorw("authentication failed closed", "path", r.URL.Path, "err", err)
			} else {
				p.log.Infow("request rejected", "path", r.URL.Path, "kind", kind, "reason", err.Error())
			}
			problems.Write(w, err)
			return
		}
		metrics.AuthOutcomes.WithLabelValues("authenticated").Inc()
		metrics.AuthDuration.WithLabelValues("authenticated").Observe(time.Since(start).Seconds())
		w.Header().Set(HeaderSessionID, ac.SessionID)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), ac)))
	})
}

func bearer(authz string) (string, bool) {
	const prefix = "bearer "
	if len(authz) < len(prefix) || !strings.EqualFold(authz[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(authz[len(prefix):])
	if tok == "" || strings.ContainsAny(tok, " \t") {
		return "", false
	}
	return tok, true
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
