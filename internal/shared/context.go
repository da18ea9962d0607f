package shared

import "context"

// Principal is the authenticated actor attached to a request after the
// bearer-token gate resolves it. Permissions hold the uppercase names of the
// capabilities granted through the principal's role.
type Principal struct {
	ID          int64
	Name        string
	Email       string
	RoleID      int64
	RoleName    string
	Permissions []string
}

// HasPermission reports whether the principal carries the named capability.
func (p *Principal) HasPermission(name string) bool {
	if p == nil {
		return false
	}
	for _, granted := range p.Permissions {
		if granted == name {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// ContextWithPrincipal stores the resolved principal in context.
func ContextWithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext extracts the principal from context, or nil when the
// request never passed the authentication gate.
func PrincipalFromContext(ctx context.Context) *Principal {
	principal, _ := ctx.Value(principalContextKey{}).(*Principal)
	return principal
}
