package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/api/respond"
	"github.com/hugh/ia-marketing/internal/auth"
	"github.com/hugh/ia-marketing/internal/authz"
)

// CallerResolver turns a verified identity into a caller, creating the
// profile on first sight.
type CallerResolver interface {
	ResolveCaller(ctx context.Context, userID uuid.UUID, email string) (authz.Caller, error)
}

// Auth rejects requests without a valid bearer token before any lookup and
// stores the resolved caller on the request context.
func Auth(tokens auth.TokenService, callers CallerResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				respond.Error(w, r, logger, authz.ErrUnauthenticated)
				return
			}

			claims, err := tokens.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				respond.Error(w, r, logger, authz.ErrUnauthenticated)
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				respond.Error(w, r, logger, authz.ErrUnauthenticated)
				return
			}

			caller, err := callers.ResolveCaller(r.Context(), userID, claims.Email)
			if err != nil {
				respond.Error(w, r, logger, err)
				return
			}

			setLoggedUser(r.Context(), caller.UserID)
			next.ServeHTTP(w, r.WithContext(authz.WithCaller(r.Context(), caller)))
		})
	}
}

// GetCaller returns the caller stored by Auth, or the zero caller.
func GetCaller(ctx context.Context) authz.Caller {
	c, _ := authz.CallerFrom(ctx)
	return c
}

// GetUserID returns the authenticated user's id, or uuid.Nil.
func GetUserID(ctx context.Context) uuid.UUID {
	return GetCaller(ctx).UserID
}

// RequirePlatformSuperadmin gates a route group on the caller's platform role.
func RequirePlatformSuperadmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := authz.RequirePlatformSuperadmin(GetCaller(r.Context())); err != nil {
				respond.Error(w, r, logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
