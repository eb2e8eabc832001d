package rbac

import (
	"net/http"
)

// RequestScope attaches a fresh resolution memo to every request so the
// evaluator resolves each caller's accessible projects at most once per
// request.
func RequestScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithRequestCache(r.Context())))
	})
}
