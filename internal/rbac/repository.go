package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-admin/meridian/internal/platform/db"
)

// Sentinel errors surfaced by the repository; the service layer translates
// them into the API error taxonomy.
var (
	ErrRoleNotFound       = errors.New("rbac: role not found")
	ErrDuplicateRole      = errors.New("rbac: duplicate role name")
	ErrPermissionNotFound = errors.New("rbac: permission not found")
	ErrUserNotFound       = errors.New("rbac: user not found")
)

// Repository defines persistence operations for roles and permissions. Read
// paths exclude soft-deleted roles.
type Repository interface {
	CreateRole(ctx context.Context, name, description string) (Role, error)
	FindRoleByName(ctx context.Context, name string) (Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	SearchRoles(ctx context.Context, nameFilter string, limit, offset int) ([]Role, int, error)
	UpdateRole(ctx context.Context, id int64, name, description *string) (Role, error)
	SoftDeleteRole(ctx context.Context, id, deletedBy int64) error
	RolePermissions(ctx context.Context, roleID int64) ([]Permission, error)
	CountPermissionsByIDs(ctx context.Context, ids []int64) (int, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	FindPermissionByResourceAction(ctx context.Context, resource, action string) (Permission, error)
	GetUserSummary(ctx context.Context, userID int64) (UserSummary, error)
}

// notDeleted is the soft-delete filter appended to every default role read.
const notDeleted = "r.is_deleted = FALSE"

const roleColumns = "r.id, r.name, r.description, r.is_deleted, r.deleted_at, r.deleted_by, r.created_at, r.updated_at"

const permissionColumns = "p.id, p.name, p.description, p.resource, p.action, p.created_at, p.updated_at"

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// CreateRole inserts a new role. The unique index on name is the
// authoritative duplicate guard.
func (r *PGRepository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, description) VALUES ($1, $2)
		 RETURNING id, name, description, is_deleted, deleted_at, deleted_by, created_at, updated_at`,
		name, description)
	role, err := scanRole(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, ErrDuplicateRole
		}
		return Role{}, err
	}
	role.Permissions = []Permission{}
	return role, nil
}

// FindRoleByName fetches an active role by exact (uppercase) name.
func (r *PGRepository) FindRoleByName(ctx context.Context, name string) (Role, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles r WHERE r.name = $1 AND `+notDeleted, name)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// GetRole fetches an active role by id with its permission set attached.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles r WHERE r.id = $1 AND `+notDeleted, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, err
	}
	perms, err := r.RolePermissions(ctx, role.ID)
	if err != nil {
		return Role{}, err
	}
	role.Permissions = perms
	return role, nil
}

// ListRoles returns all active roles, newest first, permissions attached.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+roleColumns+` FROM roles r WHERE `+notDeleted+` ORDER BY r.created_at DESC`)
	if err != nil {
		return nil, err
	}
	roles, err := collectRoles(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachPermissions(ctx, roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// SearchRoles filters active roles by case-insensitive name substring and
// returns one page plus the total match count.
func (r *PGRepository) SearchRoles(ctx context.Context, nameFilter string, limit, offset int) ([]Role, int, error) {
	pattern := "%" + nameFilter + "%"

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM roles r WHERE r.name ILIKE $1 AND `+notDeleted, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+roleColumns+` FROM roles r
		 WHERE r.name ILIKE $1 AND `+notDeleted+`
		 ORDER BY r.created_at DESC LIMIT $2 OFFSET $3`,
		pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	roles, err := collectRoles(rows)
	if err != nil {
		return nil, 0, err
	}
	if err := r.attachPermissions(ctx, roles); err != nil {
		return nil, 0, err
	}
	return roles, total, nil
}

// UpdateRole applies the provided fields to an active role.
func (r *PGRepository) UpdateRole(ctx context.Context, id int64, name, description *string) (Role, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE roles r SET
		   name = COALESCE($2, name),
		   description = COALESCE($3, description),
		   updated_at = NOW()
		 WHERE r.id = $1 AND `+notDeleted+`
		 RETURNING id, name, description, is_deleted, deleted_at, deleted_by, created_at, updated_at`,
		id, name, description)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		if db.IsUniqueViolation(err) {
			return Role{}, ErrDuplicateRole
		}
		return Role{}, err
	}
	perms, err := r.RolePermissions(ctx, role.ID)
	if err != nil {
		return Role{}, err
	}
	role.Permissions = perms
	return role, nil
}

// SoftDeleteRole marks an active role deleted, recording actor and time.
func (r *PGRepository) SoftDeleteRole(ctx context.Context, id, deletedBy int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE roles r SET is_deleted = TRUE, deleted_at = NOW(), deleted_by = $2, updated_at = NOW()
		 WHERE r.id = $1 AND `+notDeleted,
		id, deletedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// RolePermissions returns the permission set assigned to a role, sorted by
// (resource, action).
func (r *PGRepository) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+permissionColumns+` FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 WHERE rp.role_id = $1
		 ORDER BY p.resource, p.action`, roleID)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

// CountPermissionsByIDs reports how many of the given ids resolve to existing
// permissions.
func (r *PGRepository) CountPermissionsByIDs(ctx context.Context, ids []int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM permissions WHERE id = ANY($1)`, ids).Scan(&count)
	return count, err
}

// ReplaceRolePermissions swaps the full permission set of a role in one
// transaction so concurrent readers never observe a partial replacement.
func (r *PGRepository) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return fmt.Errorf("rbac: clear role permissions: %w", err)
		}
		for _, permissionID := range permissionIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`,
				roleID, permissionID); err != nil {
				return fmt.Errorf("rbac: attach permission %d: %w", permissionID, err)
			}
		}
		return nil
	})
}

// ListPermissions returns the full catalog sorted by (resource, action).
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+permissionColumns+` FROM permissions p ORDER BY p.resource, p.action`)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

// FindPermissionByResourceAction fetches one permission by its capability key.
func (r *PGRepository) FindPermissionByResourceAction(ctx context.Context, resource, action string) (Permission, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+permissionColumns+` FROM permissions p WHERE p.resource = $1 AND p.action = $2 LIMIT 1`,
		resource, action)
	perm, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, ErrPermissionNotFound
		}
		return Permission{}, err
	}
	return perm, nil
}

// GetUserSummary resolves an active user together with its role reference.
func (r *PGRepository) GetUserSummary(ctx context.Context, userID int64) (UserSummary, error) {
	var summary UserSummary
	err := r.pool.QueryRow(ctx,
		`SELECT u.id, u.name, u.email, u.role_id, r.name
		 FROM users u JOIN roles r ON r.id = u.role_id
		 WHERE u.id = $1 AND u.is_deleted = FALSE`, userID).
		Scan(&summary.ID, &summary.Name, &summary.Email, &summary.RoleID, &summary.RoleName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserSummary{}, ErrUserNotFound
		}
		return UserSummary{}, err
	}
	return summary, nil
}

func (r *PGRepository) attachPermissions(ctx context.Context, roles []Role) error {
	if len(roles) == 0 {
		return nil
	}
	ids := make([]int64, len(roles))
	index := make(map[int64]int, len(roles))
	for i := range roles {
		ids[i] = roles[i].ID
		index[roles[i].ID] = i
		roles[i].Permissions = []Permission{}
	}
	rows, err := r.pool.Query(ctx,
		`SELECT rp.role_id, `+permissionColumns+` FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 WHERE rp.role_id = ANY($1)
		 ORDER BY p.resource, p.action`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var roleID int64
		var perm Permission
		if err := rows.Scan(&roleID, &perm.ID, &perm.Name, &perm.Description, &perm.Resource, &perm.Action, &perm.CreatedAt, &perm.UpdatedAt); err != nil {
			return err
		}
		if i, ok := index[roleID]; ok {
			roles[i].Permissions = append(roles[i].Permissions, perm)
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (Role, error) {
	var role Role
	var deletedAt *time.Time
	var deletedBy *int64
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsDeleted, &deletedAt, &deletedBy, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, err
	}
	role.DeletedAt = deletedAt
	role.DeletedBy = deletedBy
	return role, nil
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	defer rows.Close()
	roles := make([]Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func scanPermission(row rowScanner) (Permission, error) {
	var perm Permission
	if err := row.Scan(&perm.ID, &perm.Name, &perm.Description, &perm.Resource, &perm.Action, &perm.CreatedAt, &perm.UpdatedAt); err != nil {
		return Permission{}, err
	}
	return perm, nil
}

func collectPermissions(rows pgx.Rows) ([]Permission, error) {
	defer rows.Close()
	perms := make([]Permission, 0)
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}
