package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-admin/meridian/internal/shared"
)

func guardResponse(t *testing.T, gate func(http.Handler) http.Handler, principal *shared.Principal) *httptest.ResponseRecorder {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/roles", nil)
	if principal != nil {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), principal))
	}
	rec := httptest.NewRecorder()
	gate(next).ServeHTTP(rec, req)
	return rec
}

func TestRequireAny(t *testing.T) {
	var guard Middleware
	gate := guard.RequireAny("READ_ROLE", "MANAGE_ROLE")

	holder := &shared.Principal{ID: 1, Permissions: []string{"READ_ROLE"}}
	require.Equal(t, http.StatusOK, guardResponse(t, gate, holder).Code)

	manager := &shared.Principal{ID: 2, Permissions: []string{"MANAGE_ROLE"}}
	require.Equal(t, http.StatusOK, guardResponse(t, gate, manager).Code)

	outsider := &shared.Principal{ID: 3, Permissions: []string{"READ_DASHBOARD"}}
	require.Equal(t, http.StatusForbidden, guardResponse(t, gate, outsider).Code)

	require.Equal(t, http.StatusForbidden, guardResponse(t, gate, nil).Code)
}

func TestRequireAnyNormalizesNames(t *testing.T) {
	var guard Middleware
	gate := guard.RequireAny(" read_role ")

	holder := &shared.Principal{ID: 1, Permissions: []string{"READ_ROLE"}}
	require.Equal(t, http.StatusOK, guardResponse(t, gate, holder).Code)
}

func TestRequireAll(t *testing.T) {
	var guard Middleware
	gate := guard.RequireAll("READ_ROLE", "READ_PERMISSION")

	full := &shared.Principal{ID: 1, Permissions: []string{"READ_ROLE", "READ_PERMISSION"}}
	require.Equal(t, http.StatusOK, guardResponse(t, gate, full).Code)

	partial := &shared.Principal{ID: 2, Permissions: []string{"READ_ROLE"}}
	require.Equal(t, http.StatusForbidden, guardResponse(t, gate, partial).Code)

	require.Equal(t, http.StatusForbidden, guardResponse(t, gate, nil).Code)
}

func TestRequireAllEmptyPassesThrough(t *testing.T) {
	var guard Middleware
	require.Equal(t, http.StatusOK, guardResponse(t, guard.RequireAll(), nil).Code)
}
