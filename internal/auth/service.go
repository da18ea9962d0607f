package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-admin/meridian/internal/rbac"
	"github.com/meridian-admin/meridian/internal/shared"
	"github.com/meridian-admin/meridian/internal/token"
	"github.com/meridian-admin/meridian/internal/users"
)

// invalidCredentials is deliberately identical for unknown identifiers and
// wrong passwords so login cannot be used to enumerate accounts.
const invalidCredentials = "Invalid credentials"

// Store defines the principal persistence the session flow depends on.
type Store interface {
	Create(ctx context.Context, input users.NewUser) (users.User, error)
	FindByID(ctx context.Context, id int64) (users.User, error)
	FindByEmail(ctx context.Context, email string) (users.User, error)
	FindByPhone(ctx context.Context, phone string) (users.User, error)
	FindByEmailOrPhone(ctx context.Context, email, phone string) (users.User, error)
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
}

// RoleFinder resolves the role referenced by a registration.
type RoleFinder interface {
	GetRole(ctx context.Context, id int64) (rbac.Role, error)
}

// Service wraps the session lifecycle business rules.
type Service struct {
	store  Store
	roles  RoleFinder
	tokens *token.Service
}

// NewService constructs a new Service.
func NewService(store Store, roles RoleFinder, tokens *token.Service) *Service {
	return &Service{store: store, roles: roles, tokens: tokens}
}

// RegisterInput carries a self-registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
	RoleID   int64
}

// LoginInput carries a login request. Exactly one of Email or Phone selects
// the lookup path.
type LoginInput struct {
	Email    string
	Phone    string
	Password string
}

// Register creates a principal and issues its first token pair. Registration
// may never self-grant the super-admin role.
func (s *Service) Register(ctx context.Context, input RegisterInput) (SessionResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	phone := strings.TrimSpace(input.Phone)

	if _, err := s.store.FindByEmailOrPhone(ctx, email, phone); err == nil {
		return SessionResult{}, shared.Conflict("User with this email or phone already exists")
	} else if !errors.Is(err, users.ErrNotFound) {
		return SessionResult{}, err
	}

	role, err := s.roles.GetRole(ctx, input.RoleID)
	if err != nil {
		if shared.KindOf(err) == shared.KindNotFound {
			return SessionResult{}, shared.Validation("Invalid role specified")
		}
		return SessionResult{}, err
	}
	if role.Name == rbac.RoleSuperAdmin {
		return SessionResult{}, shared.Forbidden("Cannot register with super admin role")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), users.PasswordHashCost)
	if err != nil {
		return SessionResult{}, err
	}

	user, err := s.store.Create(ctx, users.NewUser{
		Name:         strings.TrimSpace(input.Name),
		Email:        email,
		Phone:        phone,
		PasswordHash: string(hash),
		RoleID:       input.RoleID,
	})
	if err != nil {
		if errors.Is(err, users.ErrDuplicate) {
			return SessionResult{}, shared.Conflict("User with this email or phone already exists")
		}
		return SessionResult{}, err
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return SessionResult{}, err
	}
	return SessionResult{
		User:         sessionUser(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Login verifies credentials, stamps the authentication time and issues a
// token pair.
func (s *Service) Login(ctx context.Context, input LoginInput) (SessionResult, error) {
	var user users.User
	var err error
	switch {
	case input.Email != "":
		user, err = s.store.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(input.Email)))
	case input.Phone != "":
		user, err = s.store.FindByPhone(ctx, strings.TrimSpace(input.Phone))
	default:
		return SessionResult{}, shared.Validation("email or phone is required")
	}
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return SessionResult{}, shared.Unauthorized(invalidCredentials)
		}
		return SessionResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return SessionResult{}, shared.Unauthorized(invalidCredentials)
	}

	now := time.Now().UTC()
	if err := s.store.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return SessionResult{}, err
	}
	user.LastLoginAt = &now

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return SessionResult{}, err
	}
	return SessionResult{
		User:         sessionUser(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Refresh renews a session from a refresh token. The principal is resolved
// at renewal time, and the result always includes a new refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	if refreshToken == "" {
		return token.Pair{}, shared.Unauthorized("Refresh token required")
	}
	claims, err := s.tokens.Verify(refreshToken)
	if err != nil {
		return token.Pair{}, shared.Unauthorized("Invalid refresh token")
	}
	if claims.Kind != token.KindRefresh {
		return token.Pair{}, shared.Unauthorized("Invalid refresh token")
	}
	if _, err := s.store.FindByID(ctx, claims.UserID); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return token.Pair{}, shared.Unauthorized("User not found")
		}
		return token.Pair{}, err
	}
	return s.tokens.IssuePair(claims.UserID)
}

// Logout is a stateless no-op: there is no server-side revocation list, so
// any refresh token value is accepted and success is always reported.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return nil
}
