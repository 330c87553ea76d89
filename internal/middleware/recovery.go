package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"forgetful-backend/pkg/api"
)

// Recovery converts handler panics into 500 responses. The stack trace goes
// to the log, never to the client.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("handler panicked",
						zap.Any("panic", rec),
						zap.String("request_id", GetRequestID(r.Context())),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()),
					)
					if w.Header().Get("Content-Type") == "" {
						api.Error(w, http.StatusInternalServerError, "internal error")
					}
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
