// pkg/middleware/permissions.go
package middleware

import (
	"net/http"
	"strings"

	"tenantgate/pkg/authn"
	"tenantgate/pkg/problems"
	"tenantgate/pkg/tokens"
)

// RequirePermissions admits requests whose authenticated token carries every listed permission.
// It must run behind authn.Pipeline.Middleware; without an authenticated context the request is refused.
func RequirePermissions(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := authn.From(r.Context())
			if !ok {
				problems.Write(w, problems.New(problems.MissingCredentials, "request is not authenticated"))
				return
			}
			if !tokens.HasPermissions(tokens.Claims{Permissions: ac.Permissions}, perms...) {
				problems.WriteStatus(w, http.StatusForbidden, "insufficient-permissions", "requires permissions: "+strings.Join(perms, ", "))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HasAnyPermission reports whether the authenticated request holds at least one of required.
func HasAnyPermission(r *http.Request, required ...string) bool {
	if len(required) == 0 {
		return true
	}
	ac, ok := authn.From(r.Context())
	if !ok {
		return false
	}
	held := tokens.Claims{Permissions: ac.Permissions}
	for _, want := range required {
		if tokens.HasPermissions(held, want) {
			return true
		}
	}
	return false
}
