package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout bounds every request with a deadline. Handlers observe the
// cancellation through the request context; the error-to-status translation
// happens in the handlers, which see context.DeadlineExceeded from the
// repository layer.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
