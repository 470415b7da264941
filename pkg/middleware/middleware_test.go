package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tenantgate/pkg/authn"
)

func withAuth(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac := &authn.Context{TenantID: "acme", Permissions: perms}
			next.ServeHTTP(w, r.WithContext(authn.WithContext(r.Context(), ac)))
		})
	}
}

var noContent = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

func TestRequirePermissions(t *testing.T) {
	cases := []struct {
		name string
		held []string
		need []string
		want int
	}{
		{"subset", []string{"read", "write"}, []string{"write"}, http.StatusNoContent},
		{"all", []string{"read", "write"}, []string{"read", "write"}, http.StatusNoContent},
		{"none required", nil, nil, http.StatusNoContent},
		{"missing", []string{"read"}, []string{"write"}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := withAuth(tc.held...)(RequirePermissions(tc.need...)(noContent))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/v1/context", nil))
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRequirePermissions_Unauthenticated(t *testing.T) {
	rec := httptest.NewRecorder()
	RequirePermissions("read")(noContent).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestHasAnyPermission(t *testing.T) {
	var got bool
	h := withAuth("read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = HasAnyPermission(r, "admin", "read")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, got)

	assert.False(t, HasAnyPermission(httptest.NewRequest(http.MethodGet, "/", nil), "read"))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
}

func TestRecover(t *testing.T) {
	h := Recover(zap.NewNop().Sugar())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	require.NotPanics(t, func() { h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil)) })
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDebugWriteHeader_DisabledIsPassThrough(t *testing.T) {
	t.Setenv("DEBUG_DOUBLE_WRITE", "")
	rec := httptest.NewRecorder()
	DebugWriteHeader(zap.NewNop().Sugar())(noContent).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDebugWriteHeader_KeepsFirstStatus(t *testing.T) {
	t.Setenv("DEBUG_DOUBLE_WRITE", "1")
	h := DebugWriteHeader(zap.NewNop().Sugar())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
