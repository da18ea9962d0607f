package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridian-admin/meridian/internal/shared"
	"github.com/meridian-admin/meridian/internal/token"
	"github.com/meridian-admin/meridian/internal/users"
)

type stubPerms struct {
	names map[int64][]string
}

func (s stubPerms) RolePermissionNames(ctx context.Context, roleID int64) ([]string, error) {
	return s.names[roleID], nil
}

func newTestMiddleware(t *testing.T) (*Middleware, *memoryStore, *token.Service) {
	t.Helper()
	tokens, err := token.NewService(token.Config{Secret: "test-secret"})
	require.NoError(t, err)
	store := newMemoryStore()
	perms := stubPerms{names: map[int64][]string{3: {"READ_DASHBOARD", "READ_PERMISSION"}}}
	return NewMiddleware(nil, tokens, store, perms), store, tokens
}

func requireAuthResponse(t *testing.T, mw *Middleware, header string) *httptest.ResponseRecorder {
	t.Helper()
	var captured *shared.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = shared.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	mw.RequireAuth(next).ServeHTTP(rec, req)
	if rec.Code == http.StatusOK {
		require.NotNil(t, captured)
	}
	return rec
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Success)
	return body.Message
}

func TestRequireAuthMissingToken(t *testing.T) {
	mw, _, _ := newTestMiddleware(t)

	rec := requireAuthResponse(t, mw, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Access token required", decodeMessage(t, rec))
}

func TestRequireAuthInvalidToken(t *testing.T) {
	mw, _, _ := newTestMiddleware(t)

	rec := requireAuthResponse(t, mw, "Bearer not-a-token")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Invalid token", decodeMessage(t, rec))
}

func TestRequireAuthExpiredToken(t *testing.T) {
	mw, store, _ := newTestMiddleware(t)
	store.add(users.User{Email: "alice@example.com", RoleID: 3, IsActive: true})

	past := time.Now().Add(-time.Hour)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, token.Claims{
		UserID: 1,
		Kind:   token.KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(past.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(past),
		},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	rec := requireAuthResponse(t, mw, "Bearer "+expired)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Token expired", decodeMessage(t, rec))
}

func TestRequireAuthUnknownPrincipal(t *testing.T) {
	mw, _, tokens := newTestMiddleware(t)

	pair, err := tokens.IssuePair(404)
	require.NoError(t, err)

	rec := requireAuthResponse(t, mw, "Bearer "+pair.AccessToken)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "User not found", decodeMessage(t, rec))
}

func TestRequireAuthInactivePrincipal(t *testing.T) {
	mw, store, tokens := newTestMiddleware(t)
	seeded := store.add(users.User{Email: "alice@example.com", RoleID: 3, IsActive: false})

	pair, err := tokens.IssuePair(seeded.ID)
	require.NoError(t, err)

	rec := requireAuthResponse(t, mw, "Bearer "+pair.AccessToken)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "User account is inactive", decodeMessage(t, rec))
}

func TestRequireAuthAttachesPrincipal(t *testing.T) {
	mw, store, tokens := newTestMiddleware(t)
	seeded := store.add(users.User{
		Name: "Alice", Email: "alice@example.com", RoleID: 3, IsActive: true,
		Role: &users.RoleSummary{ID: 3, Name: "USER"},
	})

	pair, err := tokens.IssuePair(seeded.ID)
	require.NoError(t, err)

	var principal *shared.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal = shared.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	mw.RequireAuth(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, principal)
	require.Equal(t, seeded.ID, principal.ID)
	require.Equal(t, "USER", principal.RoleName)
	require.True(t, principal.HasPermission("READ_DASHBOARD"))
	require.False(t, principal.HasPermission("MANAGE_USER"))
}
