// pkg/middleware/recover.go
package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"tenantgate/pkg/problems"
)

func Recover(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Errorw("panic", "err", rec, "path", r.URL.Path, "requestId", RequestIDFrom(r.Context()), "stack", string(debug.Stack()))
					problems.WriteStatus(w, http.StatusInternalServerError, "internal-error", "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
