// Package rbac owns the role registry and the permission catalog, including
// the protected-role and soft-delete invariants enforced on every mutation
// entry point.
package rbac

import "time"

// Reserved role names exempt from deletion and permission replacement.
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
)

// Permission actions.
const (
	ActionCreate = "CREATE"
	ActionRead   = "READ"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
	ActionManage = "MANAGE"
)

// Permission represents an atomic capability keyed by (resource, action).
// Names are globally unique and uppercase; (resource, action) pairs may
// repeat across permissions.
type Permission struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Role is a named bundle of permissions. Deletion is a soft state transition;
// soft-deleted roles are hidden from every default read path.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
	IsDeleted   bool         `json:"isDeleted"`
	DeletedAt   *time.Time   `json:"deletedAt"`
	DeletedBy   *int64       `json:"deletedBy"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// UserSummary is the principal projection returned alongside effective
// permissions.
type UserSummary struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	RoleID   int64  `json:"-"`
	RoleName string `json:"role"`
}

// IsProtected reports whether the named role is exempt from deletion and
// permission-set replacement. The check runs at the start of every registry
// mutation; no entry point bypasses it.
func IsProtected(name string) bool {
	return name == RoleSuperAdmin || name == RoleAdmin
}
