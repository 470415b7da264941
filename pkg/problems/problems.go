package problems

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Base returns the base URL for problem type identifiers.
// Order of precedence:
// 1. PROBLEM_BASE_URL (exact base, e.g. https://mydomain.com/problems)
// 2. BASE_PUBLIC_URL + "/problems" (if set)
// 3. https://example.com/problems (fallback)
func Base() string {
	if b := os.Getenv("PROBLEM_BASE_URL"); b != "" {
		return strings.TrimRight(b, "/")
	}
	if b := os.Getenv("BASE_PUBLIC_URL"); b != "" {
		return strings.TrimRight(b, "/") + "/problems"
	}
	return "https://example.com/problems"
}

// Type builds a full problem type URL for the given slug.
func Type(slug string) string { return Base() + "/" + slug }

// Kind is the rejection taxonomy shared by every authentication stage.
type Kind string

const (
	MissingCredentials Kind = "MissingCredentials"
	InvalidToken       Kind = "InvalidToken"
	ExpiredToken       Kind = "ExpiredToken"
	RevokedToken       Kind = "RevokedToken"
	InvalidSignature   Kind = "InvalidSignature"
	ReplayDetected     Kind = "ReplayDetected"
	RateLimitExceeded  Kind = "RateLimitExceeded"
	StoreUnavailable   Kind = "StoreUnavailable"
	IssuanceFailed     Kind = "IssuanceFailed"
)

// Status maps a kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case RateLimitExceeded:
		return http.StatusTooManyRequests
	case StoreUnavailable:
		return http.StatusServiceUnavailable
	case IssuanceFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusUnauthorized
	}
}

// slug is the kebab-case form used in problem type URLs (InvalidToken -> invalid-token).
func (k Kind) slug() string {
	var b strings.Builder
	for i, r := range string(k) {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Rejection is a typed authentication failure.
type Rejection struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", r.Kind, r.Message, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Kind, r.Message)
}

func (r *Rejection) Unwrap() error { return r.Err }

// Is matches any *Rejection of the same kind, so errors.Is(err, problems.New(problems.RevokedToken, "")) works.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	if !ok {
		return false
	}
	return r.Kind == t.Kind
}

// New builds a rejection of the given kind.
func New(kind Kind, msg string) *Rejection {
	return &Rejection{Kind: kind, Message: msg}
}

// Wrap builds a rejection carrying the underlying cause.
func Wrap(kind Kind, msg string, err error) *Rejection {
	return &Rejection{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the rejection kind of err, or "" if err is not a rejection.
func KindOf(err error) Kind {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Kind
	}
	return ""
}

// IsKind reports whether err is a rejection of kind k.
func IsKind(err error, k Kind) bool { return KindOf(err) == k }

// Write renders err as an application/problem+json response. Errors that are not rejections are
// rendered as StoreUnavailable so nothing leaks and the request still fails closed.
func Write(w http.ResponseWriter, err error) {
	var r *Rejection
	if !errors.As(err, &r) {
		r = Wrap(StoreUnavailable, "internal dependency failure", err)
	}
	body := map[string]any{
		"type":      Type(r.Kind.slug()),
		"title":     http.StatusText(r.Kind.Status()),
		"errorKind": string(r.Kind),
		"message":   r.Message,
	}
	if r.RetryAfter > 0 {
		secs := int64(r.RetryAfter.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		body["retryAfter"] = secs
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	if r.Kind.Status() == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(r.Kind.Status())
	_ = json.NewEncoder(w).Encode(body)
}

// WriteStatus renders a problem+json response outside the authentication taxonomy (403, 400, 404...).
func WriteStatus(w http.ResponseWriter, status int, slug, msg string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":    Type(slug),
		"title":   http.StatusText(status),
		"message": msg,
	})
}
