package users

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-admin/meridian/internal/rbac"
	"github.com/meridian-admin/meridian/internal/shared"
)

// PasswordHashCost is the bcrypt cost factor for stored secrets.
const PasswordHashCost = 12

// RoleFinder resolves roles for assignment validation.
type RoleFinder interface {
	GetRole(ctx context.Context, id int64) (rbac.Role, error)
}

// Service wraps user management business rules.
type Service struct {
	repo  Repository
	roles RoleFinder
}

// NewService constructs a new Service.
func NewService(repo Repository, roles RoleFinder) *Service {
	return &Service{repo: repo, roles: roles}
}

// CreateInput carries an administrative user creation request.
type CreateInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
	RoleID   int64
}

// UpdateInput carries the optional fields of a user update.
type UpdateInput struct {
	Name     *string
	Email    *string
	Phone    *string
	Password *string
	RoleID   *int64
}

// CreateUser registers a principal through the administrative path.
func (s *Service) CreateUser(ctx context.Context, input CreateInput) (User, error) {
	email := normalizeEmail(input.Email)
	phone := strings.TrimSpace(input.Phone)

	if _, err := s.repo.FindByEmailOrPhone(ctx, email, phone); err == nil {
		return User{}, shared.Conflict("User with this email or phone already exists")
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	if _, err := s.roles.GetRole(ctx, input.RoleID); err != nil {
		if shared.KindOf(err) == shared.KindNotFound {
			return User{}, shared.Validation("Invalid role specified")
		}
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), PasswordHashCost)
	if err != nil {
		return User{}, err
	}

	user, err := s.repo.Create(ctx, NewUser{
		Name:         strings.TrimSpace(input.Name),
		Email:        email,
		Phone:        phone,
		PasswordHash: string(hash),
		RoleID:       input.RoleID,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return User{}, shared.Conflict("User with this email or phone already exists")
		}
		return User{}, err
	}
	return user, nil
}

// ListUsers returns all active users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// SearchUsers filters users with 1-indexed pagination.
func (s *Service) SearchUsers(ctx context.Context, filters SearchFilters, page, perPage int) ([]User, shared.Pagination, error) {
	meta := shared.NewPagination(page, perPage, 0)
	items, total, err := s.repo.Search(ctx, filters, meta.PerPage, meta.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(meta.Page, meta.PerPage, total), nil
}

// GetUser fetches an active user by id with the role's permission set
// populated.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, shared.NotFound("User not found")
		}
		return User{}, err
	}
	role, err := s.roles.GetRole(ctx, user.RoleID)
	if err != nil {
		// A soft-deleted role leaves the user readable with its bare summary.
		if shared.KindOf(err) == shared.KindNotFound {
			return user, nil
		}
		return User{}, err
	}
	user.Role = &RoleSummary{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		Permissions: role.Permissions,
	}
	return user, nil
}

// UpdateUser applies a profile update. A new email or phone is rejected only
// when it already belongs to a different user.
func (s *Service) UpdateUser(ctx context.Context, id int64, input UpdateInput) (User, error) {
	if _, err := s.GetUser(ctx, id); err != nil {
		return User{}, err
	}

	update := UpdateUser{Name: trimPtr(input.Name)}

	if input.Email != nil || input.Phone != nil {
		email := ""
		if input.Email != nil {
			email = normalizeEmail(*input.Email)
			update.Email = &email
		}
		phone := ""
		if input.Phone != nil {
			phone = strings.TrimSpace(*input.Phone)
			update.Phone = &phone
		}
		if _, err := s.repo.FindDuplicate(ctx, id, email, phone); err == nil {
			return User{}, shared.Conflict("Email or phone already exists")
		} else if !errors.Is(err, ErrNotFound) {
			return User{}, err
		}
	}

	if input.RoleID != nil {
		if _, err := s.roles.GetRole(ctx, *input.RoleID); err != nil {
			if shared.KindOf(err) == shared.KindNotFound {
				return User{}, shared.Validation("Invalid role specified")
			}
			return User{}, err
		}
		update.RoleID = input.RoleID
	}

	if input.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*input.Password), PasswordHashCost)
		if err != nil {
			return User{}, err
		}
		hashed := string(hash)
		update.PasswordHash = &hashed
	}

	user, err := s.repo.Update(ctx, id, update)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return User{}, shared.NotFound("User not found")
		case errors.Is(err, ErrDuplicate):
			return User{}, shared.Conflict("Email or phone already exists")
		default:
			return User{}, err
		}
	}
	return user, nil
}

// DeleteUser soft-deletes a user, recording the acting principal.
func (s *Service) DeleteUser(ctx context.Context, id, actorID int64) error {
	if err := s.repo.SoftDelete(ctx, id, actorID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return shared.NotFound("User not found")
		}
		return err
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func trimPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}
