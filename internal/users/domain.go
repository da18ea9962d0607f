// Package users owns principal records: credentials, role assignment, the
// active flag and the soft-delete lifecycle.
package users

import (
	"time"

	"github.com/meridian-admin/meridian/internal/rbac"
)

// RoleSummary is the role reference populated on user reads. Permissions are
// filled only on single-user fetches.
type RoleSummary struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Permissions []rbac.Permission `json:"permissions,omitempty"`
}

// User represents a principal. Email and phone are both unique; every user
// holds exactly one role.
type User struct {
	ID            int64        `json:"id"`
	Name          string       `json:"name"`
	Email         string       `json:"email"`
	Phone         string       `json:"phone"`
	PasswordHash  string       `json:"-"`
	RoleID        int64        `json:"-"`
	Role          *RoleSummary `json:"role,omitempty"`
	IsActive      bool         `json:"isActive"`
	EmailVerified bool         `json:"emailVerified"`
	PhoneVerified bool         `json:"phoneVerified"`
	LastLoginAt   *time.Time   `json:"lastLogin"`
	IsDeleted     bool         `json:"-"`
	DeletedAt     *time.Time   `json:"-"`
	DeletedBy     *int64       `json:"-"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// NewUser carries the fields required to persist a principal.
type NewUser struct {
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	RoleID       int64
}

// UpdateUser carries the optional fields of a profile update.
type UpdateUser struct {
	Name         *string
	Email        *string
	Phone        *string
	PasswordHash *string
	RoleID       *int64
}

// SearchFilters narrows user listings.
type SearchFilters struct {
	Name   string
	Email  string
	RoleID int64
}
