package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/lendgrid/export-profiles/internal/service"
	"go.uber.org/zap"
)

type contextKey string

const (
	orgIDKey  contextKey = "orgID"
	userIDKey contextKey = "userID"
)

// Headers accepted in place of a token when dev auth is enabled.
const (
	HeaderOrgID  = "X-Org-Id"
	HeaderUserID = "X-User-Id"
)

// OrgAuthMiddleware resolves the caller's organization and injects it into
// the context. A Bearer token is always honoured; with devAuth set, requests
// without one may name their org in the X-Org-Id header instead.
func OrgAuthMiddleware(authSvc *service.AuthService, devAuth bool, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")

			if authHeader == "" {
				orgID := strings.TrimSpace(r.Header.Get(HeaderOrgID))
				if devAuth && orgID != "" {
					ctx := context.WithValue(r.Context(), orgIDKey, orgID)
					ctx = context.WithValue(ctx, userIDKey, strings.TrimSpace(r.Header.Get(HeaderUserID)))
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "missing authentication token")
				return
			}

			if authSvc == nil {
				writeError(w, http.StatusUnauthorized, "token authentication is not configured")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "invalid token format")
				return
			}

			claims, err := authSvc.ValidateAccessToken(parts[1])
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), orgIDKey, claims.OrgID)
			ctx = context.WithValue(ctx, userIDKey, claims.Sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OrgIDFromContext extracts the authenticated organization ID from context.
func OrgIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(orgIDKey).(string)
	return v
}

// UserIDFromContext extracts the authenticated user ID from context.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}
