package users

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-admin/meridian/internal/platform/db"
)

// Sentinel errors surfaced by the repository.
var (
	ErrNotFound  = errors.New("users: not found")
	ErrDuplicate = errors.New("users: duplicate email or phone")
)

// Repository defines persistence operations for principals. Default read
// paths exclude soft-deleted users.
type Repository interface {
	Create(ctx context.Context, input NewUser) (User, error)
	FindByID(ctx context.Context, id int64) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByPhone(ctx context.Context, phone string) (User, error)
	FindByEmailOrPhone(ctx context.Context, email, phone string) (User, error)
	FindDuplicate(ctx context.Context, excludeID int64, email, phone string) (User, error)
	List(ctx context.Context) ([]User, error)
	Search(ctx context.Context, filters SearchFilters, limit, offset int) ([]User, int, error)
	Update(ctx context.Context, id int64, input UpdateUser) (User, error)
	SoftDelete(ctx context.Context, id, deletedBy int64) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
}

const notDeleted = "u.is_deleted = FALSE"

const userColumns = `u.id, u.name, u.email, u.phone, u.password_hash, u.role_id,
	u.is_active, u.email_verified, u.phone_verified, u.last_login_at,
	u.is_deleted, u.deleted_at, u.deleted_by, u.created_at, u.updated_at,
	r.name, r.description`

const userSelect = `SELECT ` + userColumns + ` FROM users u JOIN roles r ON r.id = u.role_id WHERE `

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// Create inserts a principal. The unique indexes on email and phone are the
// authoritative duplicate guard.
func (r *PGRepository) Create(ctx context.Context, input NewUser) (User, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (name, email, phone, password_hash, role_id)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		input.Name, input.Email, input.Phone, input.PasswordHash, input.RoleID).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, ErrDuplicate
		}
		return User{}, err
	}
	return r.FindByID(ctx, id)
}

// FindByID fetches an active user with its role populated.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (User, error) {
	return r.findOne(ctx, userSelect+`u.id = $1 AND `+notDeleted, id)
}

// FindByEmail fetches an active user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.findOne(ctx, userSelect+`u.email = $1 AND `+notDeleted, email)
}

// FindByPhone fetches an active user by phone.
func (r *PGRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	return r.findOne(ctx, userSelect+`u.phone = $1 AND `+notDeleted, phone)
}

// FindByEmailOrPhone is the registration fast-path duplicate check.
func (r *PGRepository) FindByEmailOrPhone(ctx context.Context, email, phone string) (User, error) {
	return r.findOne(ctx, userSelect+`(u.email = $1 OR u.phone = $2) AND `+notDeleted, email, phone)
}

// FindDuplicate looks for a different user already holding the email or
// phone. Empty values never match.
func (r *PGRepository) FindDuplicate(ctx context.Context, excludeID int64, email, phone string) (User, error) {
	return r.findOne(ctx,
		userSelect+`u.id <> $1 AND (($2 <> '' AND u.email = $2) OR ($3 <> '' AND u.phone = $3)) AND `+notDeleted,
		excludeID, email, phone)
}

// List returns all active users, newest first.
func (r *PGRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, userSelect+notDeleted+` ORDER BY u.created_at DESC`)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

// Search filters active users and returns one page plus the total count.
func (r *PGRepository) Search(ctx context.Context, filters SearchFilters, limit, offset int) ([]User, int, error) {
	conditions := []string{notDeleted}
	args := []any{}
	if filters.Name != "" {
		args = append(args, "%"+filters.Name+"%")
		conditions = append(conditions, "u.name ILIKE $"+strconv.Itoa(len(args)))
	}
	if filters.Email != "" {
		args = append(args, "%"+filters.Email+"%")
		conditions = append(conditions, "u.email ILIKE $"+strconv.Itoa(len(args)))
	}
	if filters.RoleID > 0 {
		args = append(args, filters.RoleID)
		conditions = append(conditions, "u.role_id = $"+strconv.Itoa(len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users u WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx,
		userSelect+where+` ORDER BY u.created_at DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectUsers(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Update applies the provided fields to an active user.
func (r *PGRepository) Update(ctx context.Context, id int64, input UpdateUser) (User, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users u SET
		   name = COALESCE($2, name),
		   email = COALESCE($3, email),
		   phone = COALESCE($4, phone),
		   password_hash = COALESCE($5, password_hash),
		   role_id = COALESCE($6, role_id),
		   updated_at = NOW()
		 WHERE u.id = $1 AND `+notDeleted,
		id, input.Name, input.Email, input.Phone, input.PasswordHash, input.RoleID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, ErrDuplicate
		}
		return User{}, err
	}
	if tag.RowsAffected() == 0 {
		return User{}, ErrNotFound
	}
	return r.FindByID(ctx, id)
}

// SoftDelete marks an active user deleted, recording actor and time.
func (r *PGRepository) SoftDelete(ctx context.Context, id, deletedBy int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users u SET is_deleted = TRUE, deleted_at = NOW(), deleted_by = $2, updated_at = NOW()
		 WHERE u.id = $1 AND `+notDeleted,
		id, deletedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLastLogin stamps a successful authentication.
func (r *PGRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users u SET last_login_at = $2, updated_at = NOW() WHERE u.id = $1 AND `+notDeleted,
		id, at.UTC())
	return err
}

func (r *PGRepository) findOne(ctx context.Context, query string, args ...any) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var user User
	var role RoleSummary
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.Phone, &user.PasswordHash, &user.RoleID,
		&user.IsActive, &user.EmailVerified, &user.PhoneVerified, &user.LastLoginAt,
		&user.IsDeleted, &user.DeletedAt, &user.DeletedBy, &user.CreatedAt, &user.UpdatedAt,
		&role.Name, &role.Description,
	)
	if err != nil {
		return User{}, err
	}
	role.ID = user.RoleID
	user.Role = &role
	return user, nil
}

func collectUsers(rows pgx.Rows) ([]User, error) {
	defer rows.Close()
	items := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, user)
	}
	return items, rows.Err()
}

