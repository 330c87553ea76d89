package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"forgetful-backend/internal/auth"
	"forgetful-backend/pkg/api"
)

// Authenticate resolves the calling user and stores the ID on the context.
// Unresolvable requests stop here with 401.
func Authenticate(resolver auth.UserResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := resolver.ResolveUser(r)
			if err != nil {
				logger.Debug("authentication rejected",
					zap.String("request_id", GetRequestID(r.Context())),
					zap.Error(err),
				)
				api.Error(w, http.StatusUnauthorized, "authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
		})
	}
}
