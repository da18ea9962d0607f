package rbac

import (
	"net/http"

	"github.com/meridian-admin/meridian/internal/platform/httpx"
	"github.com/meridian-admin/meridian/internal/shared"
)

// Middleware gates routes on the permission set the authentication layer
// attached to the request context.
type Middleware struct{}

// RequireAny ensures the current principal holds at least one of the named
// permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.Error(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			for _, required := range normalized {
				if principal.HasPermission(required) {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.Error(w, http.StatusForbidden, "Insufficient permissions")
		})
	}
}

// RequireAll ensures the current principal holds every named permission.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil && len(normalized) > 0 {
				httpx.Error(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			for _, required := range normalized {
				if !principal.HasPermission(required) {
					httpx.Error(w, http.StatusForbidden, "Insufficient permissions")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = NormalizeName(p)
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
