package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridian-admin/meridian/internal/platform/httpx"
	"github.com/meridian-admin/meridian/internal/shared"
	"github.com/meridian-admin/meridian/internal/token"
	"github.com/meridian-admin/meridian/internal/users"
)

// PermissionSource resolves the permission names granted through a role.
type PermissionSource interface {
	RolePermissionNames(ctx context.Context, roleID int64) ([]string, error)
}

// Middleware is the per-request authentication gate. Every protected request
// walks the same path: extract bearer token, verify, resolve the principal,
// check the active flag, attach the principal to the context.
type Middleware struct {
	logger *slog.Logger
	tokens *token.Service
	store  Store
	perms  PermissionSource
}

// NewMiddleware constructs the gate.
func NewMiddleware(logger *slog.Logger, tokens *token.Service, store Store, perms PermissionSource) *Middleware {
	return &Middleware{logger: logger, tokens: tokens, store: store, perms: perms}
}

// RequireAuth rejects requests without a valid access token belonging to an
// existing, active principal.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer := bearerToken(r)
		if bearer == "" {
			httpx.Error(w, http.StatusUnauthorized, "Access token required")
			return
		}

		claims, err := m.tokens.Verify(bearer)
		if err != nil {
			if errors.Is(err, token.ErrTokenExpired) {
				httpx.Error(w, http.StatusUnauthorized, "Token expired")
				return
			}
			httpx.Error(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		user, err := m.store.FindByID(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, users.ErrNotFound) {
				httpx.Error(w, http.StatusUnauthorized, "User not found")
				return
			}
			m.logError("resolve principal", err)
			httpx.Error(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if !user.IsActive {
			httpx.Error(w, http.StatusUnauthorized, "User account is inactive")
			return
		}

		permissions, err := m.perms.RolePermissionNames(r.Context(), user.RoleID)
		if err != nil {
			m.logError("resolve permissions", err)
			httpx.Error(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		principal := &shared.Principal{
			ID:          user.ID,
			Name:        user.Name,
			Email:       user.Email,
			RoleID:      user.RoleID,
			Permissions: permissions,
		}
		if user.Role != nil {
			principal.RoleName = user.Role.Name
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

func (m *Middleware) logError(op string, err error) {
	if m.logger != nil {
		m.logger.Error(op, slog.Any("error", err))
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
