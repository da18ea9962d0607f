// Package auth orchestrates the session lifecycle: registration, login,
// token renewal and the per-request bearer-token gate.
package auth

import (
	"time"

	"github.com/meridian-admin/meridian/internal/users"
)

// SessionUser is the public-safe principal projection returned with a token
// pair. It never carries the secret hash.
type SessionUser struct {
	ID        int64              `json:"id"`
	Name      string             `json:"name"`
	Email     string             `json:"email"`
	Phone     string             `json:"phone"`
	Role      *users.RoleSummary `json:"role"`
	LastLogin *time.Time         `json:"lastLogin,omitempty"`
}

// SessionResult bundles the projection and the issued credentials.
type SessionResult struct {
	User         SessionUser `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

func sessionUser(u users.User) SessionUser {
	return SessionUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      u.Role,
		LastLogin: u.LastLoginAt,
	}
}
