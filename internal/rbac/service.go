package rbac

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/meridian-admin/meridian/internal/shared"
)

// Service orchestrates the role registry and permission catalog.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
}

// NewService constructs a Service. Cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// UpdateRoleInput carries the optional fields of a role update.
type UpdateRoleInput struct {
	Name        *string
	Description *string
}

// CreateRole registers a new role. Names are normalized to uppercase; the
// duplicate pre-check gives a clean message, the unique index stays the
// authoritative guard.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = NormalizeName(name)
	description = strings.TrimSpace(description)

	if _, err := s.repo.FindRoleByName(ctx, name); err == nil {
		return Role{}, shared.Conflict("Role already exists")
	} else if !errors.Is(err, ErrRoleNotFound) {
		return Role{}, err
	}

	role, err := s.repo.CreateRole(ctx, name, description)
	if err != nil {
		if errors.Is(err, ErrDuplicateRole) {
			return Role{}, shared.Conflict("Role already exists")
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns all active roles with their permission sets.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// SearchRoles filters roles by name substring with 1-indexed pagination.
func (s *Service) SearchRoles(ctx context.Context, nameFilter string, page, perPage int) ([]Role, shared.Pagination, error) {
	meta := shared.NewPagination(page, perPage, 0)
	roles, total, err := s.repo.SearchRoles(ctx, strings.TrimSpace(nameFilter), meta.PerPage, meta.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return roles, shared.NewPagination(meta.Page, meta.PerPage, total), nil
}

// GetRole fetches an active role with permissions populated.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return Role{}, shared.NotFound("Role not found")
		}
		return Role{}, err
	}
	return role, nil
}

// UpdateRole edits name and/or description. Protected roles cannot be
// renamed; a name collision with a different role is a conflict.
func (s *Service) UpdateRole(ctx context.Context, id int64, input UpdateRoleInput) (Role, error) {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}

	var newName *string
	if input.Name != nil {
		normalized := NormalizeName(*input.Name)
		if IsProtected(role.Name) && normalized != role.Name {
			return Role{}, shared.Forbidden("Cannot rename protected roles")
		}
		if normalized != role.Name {
			if existing, err := s.repo.FindRoleByName(ctx, normalized); err == nil && existing.ID != id {
				return Role{}, shared.Conflict("Role name already exists")
			} else if err != nil && !errors.Is(err, ErrRoleNotFound) {
				return Role{}, err
			}
		}
		newName = &normalized
	}

	var newDescription *string
	if input.Description != nil {
		trimmed := strings.TrimSpace(*input.Description)
		newDescription = &trimmed
	}

	updated, err := s.repo.UpdateRole(ctx, id, newName, newDescription)
	if err != nil {
		switch {
		case errors.Is(err, ErrRoleNotFound):
			return Role{}, shared.NotFound("Role not found")
		case errors.Is(err, ErrDuplicateRole):
			return Role{}, shared.Conflict("Role name already exists")
		default:
			return Role{}, err
		}
	}
	return updated, nil
}

// DeleteRole soft-deletes a role, recording the acting principal. Protected
// roles are never deletable, from any entry point.
func (s *Service) DeleteRole(ctx context.Context, id, actorID int64) error {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if IsProtected(role.Name) {
		return shared.Forbidden("Cannot delete admin roles")
	}
	if err := s.repo.SoftDeleteRole(ctx, id, actorID); err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return shared.NotFound("Role not found")
		}
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// SetRolePermissions replaces the full permission set of a role atomically.
// Duplicate ids collapse; every id must resolve to an existing permission or
// the set is left untouched.
func (s *Service) SetRolePermissions(ctx context.Context, id int64, permissionIDs []int64) (Role, error) {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if IsProtected(role.Name) {
		return Role{}, shared.Forbidden("Cannot modify admin role permissions")
	}

	unique := dedupIDs(permissionIDs)
	if len(unique) == 0 {
		return Role{}, shared.Validation("permissionIds is required")
	}
	resolved, err := s.repo.CountPermissionsByIDs(ctx, unique)
	if err != nil {
		return Role{}, err
	}
	if resolved != len(unique) {
		return Role{}, shared.Validation("One or more permissions not found")
	}

	if err := s.repo.ReplaceRolePermissions(ctx, id, unique); err != nil {
		return Role{}, err
	}
	s.invalidate(ctx, id)
	return s.GetRole(ctx, id)
}

// ListPermissions returns the catalog sorted by (resource, action).
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// FindPermissionByResourceAction looks a capability up by its key.
func (s *Service) FindPermissionByResourceAction(ctx context.Context, resource, action string) (Permission, error) {
	perm, err := s.repo.FindPermissionByResourceAction(ctx, NormalizeName(resource), NormalizeName(action))
	if err != nil {
		if errors.Is(err, ErrPermissionNotFound) {
			return Permission{}, shared.NotFound("Permission not found")
		}
		return Permission{}, err
	}
	return perm, nil
}

// EffectivePermissions resolves a principal's role and returns its permission
// set together with a principal summary.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) (UserSummary, []Permission, error) {
	summary, err := s.repo.GetUserSummary(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return UserSummary{}, nil, shared.NotFound("User not found")
		}
		return UserSummary{}, nil, err
	}

	perms, err := s.rolePermissions(ctx, summary.RoleID)
	if err != nil {
		return UserSummary{}, nil, err
	}
	return summary, perms, nil
}

// RolePermissionNames returns the permission names granted through a role,
// served from the cache when possible.
func (s *Service) RolePermissionNames(ctx context.Context, roleID int64) ([]string, error) {
	perms, err := s.rolePermissions(ctx, roleID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(perms))
	for i, perm := range perms {
		names[i] = perm.Name
	}
	return names, nil
}

func (s *Service) rolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	if perms, ok := s.cache.Get(ctx, roleID); ok {
		return perms, nil
	}
	perms, err := s.repo.RolePermissions(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, roleID, perms); err != nil && s.logger != nil {
		s.logger.Warn("cache role permissions", slog.Int64("role_id", roleID), slog.Any("error", err))
	}
	return perms, nil
}

// NormalizeName uppercases and trims an identifier the way the registry
// stores it.
func NormalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

func (s *Service) invalidate(ctx context.Context, roleID int64) {
	if err := s.cache.Invalidate(ctx, roleID); err != nil && s.logger != nil {
		s.logger.Warn("invalidate role permissions cache", slog.Int64("role_id", roleID), slog.Any("error", err))
	}
}

func dedupIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}
