package problems

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, InvalidSignature.Status())
	assert.Equal(t, http.StatusUnauthorized, ReplayDetected.Status())
	assert.Equal(t, http.StatusTooManyRequests, RateLimitExceeded.Status())
	assert.Equal(t, http.StatusServiceUnavailable, StoreUnavailable.Status())
	assert.Equal(t, http.StatusInternalServerError, IssuanceFailed.Status())
}

func TestKindMatching(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("validate: %w", Wrap(StoreUnavailable, "registry down", cause))

	assert.True(t, IsKind(err, StoreUnavailable))
	assert.True(t, errors.Is(err, New(StoreUnavailable, "")))
	assert.False(t, errors.Is(err, New(InvalidToken, "")))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, Kind(""), KindOf(cause))
}

func TestWrite(t *testing.T) {
	t.Setenv("PROBLEM_BASE_URL", "")
	t.Setenv("BASE_PUBLIC_URL", "")
	rec := httptest.NewRecorder()
	Write(rec, &Rejection{Kind: RateLimitExceeded, Message: "slow down", RetryAfter: 60 * time.Second})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "RateLimitExceeded", body["errorKind"])
	assert.Equal(t, "https://example.com/problems/rate-limit-exceeded", body["type"])
	assert.Equal(t, float64(60), body["retryAfter"])
}

func TestWrite_UntypedErrorFailsClosed(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, errors.New("boom"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))

	rec = httptest.NewRecorder()
	Write(rec, New(ExpiredToken, "token expired"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestWriteStatus(t *testing.T) {
	t.Setenv("PROBLEM_BASE_URL", "https://gw.example/problems/")
	rec := httptest.NewRecorder()
	WriteStatus(rec, http.StatusForbidden, "insufficient-permissions", "nope")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "https://gw.example/problems/insufficient-permissions", body["type"])
}
