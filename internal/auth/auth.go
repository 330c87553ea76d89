// Package auth resolves the calling user from a request. The core never
// interprets tokens itself; it consumes the UserResolver contract. The
// bearer resolver shipped here treats the token as an identity-provider
// subject and auto-provisions unknown subjects, idempotent on the user
// table's unique external_id.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/repository"
	appErrors "forgetful-backend/pkg/errors"
)

// ctxKey is unexported so only this package can place values.
type ctxKey struct{}

// UserResolver maps an incoming request to a user ID.
type UserResolver interface {
	ResolveUser(r *http.Request) (string, error)
}

// WithUserID stores the resolved user on the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserIDFrom reads the resolved user off the context.
func UserIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// BearerResolver resolves Authorization: Bearer tokens against the user
// table, provisioning first-time subjects.
type BearerResolver struct {
	users  repository.UserRepository
	logger *zap.Logger
}

// NewBearerResolver wires the resolver.
func NewBearerResolver(users repository.UserRepository, logger *zap.Logger) *BearerResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BearerResolver{users: users, logger: logger.Named("auth")}
}

// ResolveUser extracts the bearer token and resolves or provisions the user.
func (b *BearerResolver) ResolveUser(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", appErrors.NewPermissionDenied("missing Authorization header", "")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", appErrors.NewPermissionDenied("malformed Authorization header", "")
	}
	externalID := strings.TrimSpace(parts[1])

	u, err := b.users.GetUserByExternalID(r.Context(), externalID)
	if err == nil {
		return u.ID, nil
	}
	if !appErrors.IsNotFound(err) {
		return "", err
	}

	created, err := b.users.CreateUser(r.Context(), &domain.User{
		ID:         uuid.NewString(),
		ExternalID: externalID,
	})
	if err != nil {
		// Lost a provisioning race: the unique external_id makes the retry
		// read authoritative.
		if appErrors.IsValidation(err) {
			if u, lookupErr := b.users.GetUserByExternalID(r.Context(), externalID); lookupErr == nil {
				return u.ID, nil
			}
		}
		return "", err
	}
	b.logger.Info("auto-provisioned user", zap.String("user_id", created.ID))
	return created.ID, nil
}

// SessionScope extracts the OAuth scope claim carried alongside the request,
// if any. Scope strings are RFC 6749 space-separated; the tools package
// consumes them comma-separated, so the separator is normalized here.
func SessionScope(r *http.Request) string {
	raw := r.Header.Get("X-Session-Scope")
	if raw == "" {
		return ""
	}
	return strings.Join(strings.Fields(raw), ",")
}
