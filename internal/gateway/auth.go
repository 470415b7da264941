package gateway

import (
	"crypto/subtle"
	"net/http"

	"tenantgate/pkg/problems"
)

const HeaderAdminKey = "X-Admin-Key"

// adminAuth admits requests carrying the configured admin key. With no key configured every admin
// request is refused.
func (a *App) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.adminKey == "" {
			problems.WriteStatus(w, http.StatusNotFound, "admin-disabled", "admin routes are disabled")
			return
		}
		got := r.Header.Get(HeaderAdminKey)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(a.adminKey)) != 1 {
			a.log.Warnw("admin request refused", "path", r.URL.Path, "remote", r.RemoteAddr)
			problems.Write(w, problems.New(problems.MissingCredentials, "valid X-Admin-Key required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
