package users

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-admin/meridian/internal/rbac"
	"github.com/meridian-admin/meridian/internal/shared"
)

type memoryRepo struct {
	users  map[int64]*User
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: make(map[int64]*User)}
}

func (r *memoryRepo) add(u User) *User {
	r.nextID++
	u.ID = r.nextID
	r.users[u.ID] = &u
	return &u
}

func (r *memoryRepo) Create(ctx context.Context, input NewUser) (User, error) {
	for _, existing := range r.users {
		if existing.Email == input.Email || existing.Phone == input.Phone {
			return User{}, ErrDuplicate
		}
	}
	created := r.add(User{
		Name:         input.Name,
		Email:        input.Email,
		Phone:        input.Phone,
		PasswordHash: input.PasswordHash,
		RoleID:       input.RoleID,
		IsActive:     true,
	})
	return *created, nil
}

func (r *memoryRepo) FindByID(ctx context.Context, id int64) (User, error) {
	if u, ok := r.users[id]; ok && !u.IsDeleted {
		return *u, nil
	}
	return User{}, ErrNotFound
}

func (r *memoryRepo) FindByEmail(ctx context.Context, email string) (User, error) {
	for _, u := range r.users {
		if u.Email == email && !u.IsDeleted {
			return *u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryRepo) FindByPhone(ctx context.Context, phone string) (User, error) {
	for _, u := range r.users {
		if u.Phone == phone && !u.IsDeleted {
			return *u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryRepo) FindByEmailOrPhone(ctx context.Context, email, phone string) (User, error) {
	for _, u := range r.users {
		if (u.Email == email || u.Phone == phone) && !u.IsDeleted {
			return *u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryRepo) FindDuplicate(ctx context.Context, excludeID int64, email, phone string) (User, error) {
	for _, u := range r.users {
		if u.ID == excludeID || u.IsDeleted {
			continue
		}
		if (email != "" && u.Email == email) || (phone != "" && u.Phone == phone) {
			return *u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context) ([]User, error) {
	var out []User
	for _, u := range r.users {
		if !u.IsDeleted {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) Search(ctx context.Context, filters SearchFilters, limit, offset int) ([]User, int, error) {
	all, _ := r.List(ctx)
	var matched []User
	for _, u := range all {
		if filters.Name != "" && !strings.Contains(strings.ToLower(u.Name), strings.ToLower(filters.Name)) {
			continue
		}
		if filters.Email != "" && !strings.Contains(u.Email, filters.Email) {
			continue
		}
		if filters.RoleID != 0 && u.RoleID != filters.RoleID {
			continue
		}
		matched = append(matched, u)
	}
	total := len(matched)
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, input UpdateUser) (User, error) {
	u, ok := r.users[id]
	if !ok || u.IsDeleted {
		return User{}, ErrNotFound
	}
	if input.Name != nil {
		u.Name = *input.Name
	}
	if input.Email != nil {
		u.Email = *input.Email
	}
	if input.Phone != nil {
		u.Phone = *input.Phone
	}
	if input.PasswordHash != nil {
		u.PasswordHash = *input.PasswordHash
	}
	if input.RoleID != nil {
		u.RoleID = *input.RoleID
	}
	return *u, nil
}

func (r *memoryRepo) SoftDelete(ctx context.Context, id, deletedBy int64) error {
	u, ok := r.users[id]
	if !ok || u.IsDeleted {
		return ErrNotFound
	}
	now := time.Now()
	u.IsDeleted = true
	u.DeletedAt = &now
	u.DeletedBy = &deletedBy
	return nil
}

func (r *memoryRepo) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	if u, ok := r.users[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

type stubRoles struct {
	roles map[int64]rbac.Role
}

func (s stubRoles) GetRole(ctx context.Context, id int64) (rbac.Role, error) {
	if role, ok := s.roles[id]; ok {
		return role, nil
	}
	return rbac.Role{}, shared.NotFound("Role not found")
}

func newTestService(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	roles := stubRoles{roles: map[int64]rbac.Role{
		1: {ID: 1, Name: rbac.RoleSuperAdmin},
		3: {ID: 3, Name: "USER", Permissions: []rbac.Permission{
			{ID: 1, Name: "READ_DASHBOARD", Resource: "DASHBOARD", Action: rbac.ActionRead},
		}},
	}}
	return NewService(repo, roles), repo
}

func TestCreateUser(t *testing.T) {
	svc, _ := newTestService(t)

	user, err := svc.CreateUser(context.Background(), CreateInput{
		Name: " Alice ", Email: "Alice@Example.com", Phone: "1234567890", Password: "secret-pass", RoleID: 3,
	})
	require.NoError(t, err)
	require.Equal(t, "Alice", user.Name)
	require.Equal(t, "alice@example.com", user.Email)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret-pass")))
}

func TestCreateUserAllowsSuperAdminRole(t *testing.T) {
	// The administrative path may assign any role, including SUPER_ADMIN;
	// only self-registration is restricted.
	svc, _ := newTestService(t)

	_, err := svc.CreateUser(context.Background(), CreateInput{
		Name: "Root", Email: "root@example.com", Phone: "1112223334", Password: "secret", RoleID: 1,
	})
	require.NoError(t, err)
}

func TestCreateUserDuplicate(t *testing.T) {
	svc, repo := newTestService(t)
	repo.add(User{Email: "alice@example.com", Phone: "1234567890", RoleID: 3})

	_, err := svc.CreateUser(context.Background(), CreateInput{
		Name: "Bob", Email: "alice@example.com", Phone: "0987654321", Password: "secret", RoleID: 3,
	})
	require.Error(t, err)
	require.Equal(t, shared.KindConflict, shared.KindOf(err))
	require.Equal(t, "User with this email or phone already exists", shared.UserSafeMessage(err))
}

func TestCreateUserInvalidRole(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateUser(context.Background(), CreateInput{
		Name: "Bob", Email: "bob@example.com", Phone: "0987654321", Password: "secret", RoleID: 99,
	})
	require.Error(t, err)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
	require.Equal(t, "Invalid role specified", shared.UserSafeMessage(err))
}

func TestGetUserPopulatesRolePermissions(t *testing.T) {
	svc, repo := newTestService(t)
	seeded := repo.add(User{Name: "Alice", Email: "alice@example.com", Phone: "1234567890", RoleID: 3})

	user, err := svc.GetUser(context.Background(), seeded.ID)
	require.NoError(t, err)
	require.NotNil(t, user.Role)
	require.Equal(t, "USER", user.Role.Name)
	require.Len(t, user.Role.Permissions, 1)
	require.Equal(t, "READ_DASHBOARD", user.Role.Permissions[0].Name)
}

type failingRoles struct {
	err error
}

func (s failingRoles) GetRole(ctx context.Context, id int64) (rbac.Role, error) {
	return rbac.Role{}, s.err
}

func TestGetUserPropagatesRoleFetchFailure(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, failingRoles{err: errors.New("connection reset")})
	seeded := repo.add(User{Name: "Alice", Email: "alice@example.com", Phone: "1234567890", RoleID: 3})

	_, err := svc.GetUser(context.Background(), seeded.ID)
	require.Error(t, err)
	require.Equal(t, shared.KindInternal, shared.KindOf(err))
}

func TestGetUserToleratesMissingRole(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, stubRoles{roles: map[int64]rbac.Role{}})
	seeded := repo.add(User{Name: "Alice", Email: "alice@example.com", Phone: "1234567890", RoleID: 3})

	user, err := svc.GetUser(context.Background(), seeded.ID)
	require.NoError(t, err)
	require.Equal(t, seeded.ID, user.ID)
	require.Nil(t, user.Role)
}

func TestUpdateUserKeepsOwnIdentifiers(t *testing.T) {
	svc, repo := newTestService(t)
	seeded := repo.add(User{Name: "Alice", Email: "alice@example.com", Phone: "1234567890", RoleID: 3})

	// Re-submitting the user's own email is not a conflict.
	email := "alice@example.com"
	name := "Alice Cooper"
	updated, err := svc.UpdateUser(context.Background(), seeded.ID, UpdateInput{Name: &name, Email: &email})
	require.NoError(t, err)
	require.Equal(t, "Alice Cooper", updated.Name)
	require.Equal(t, "alice@example.com", updated.Email)
}

func TestUpdateUserRejectsForeignIdentifiers(t *testing.T) {
	svc, repo := newTestService(t)
	repo.add(User{Name: "Alice", Email: "alice@example.com", Phone: "1234567890", RoleID: 3})
	bob := repo.add(User{Name: "Bob", Email: "bob@example.com", Phone: "0987654321", RoleID: 3})

	email := "alice@example.com"
	_, err := svc.UpdateUser(context.Background(), bob.ID, UpdateInput{Email: &email})
	require.Error(t, err)
	require.Equal(t, shared.KindConflict, shared.KindOf(err))
	require.Equal(t, "Email or phone already exists", shared.UserSafeMessage(err))

	phone := "1234567890"
	_, err = svc.UpdateUser(context.Background(), bob.ID, UpdateInput{Phone: &phone})
	require.Error(t, err)
	require.Equal(t, shared.KindConflict, shared.KindOf(err))
}

func TestUpdateUserRehashesPassword(t *testing.T) {
	svc, repo := newTestService(t)
	seeded := repo.add(User{Name: "Alice", Email: "alice@example.com", Phone: "1234567890", PasswordHash: "old-hash", RoleID: 3})

	password := "new-secret"
	updated, err := svc.UpdateUser(context.Background(), seeded.ID, UpdateInput{Password: &password})
	require.NoError(t, err)
	require.NotEqual(t, "old-hash", updated.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(updated.PasswordHash), []byte("new-secret")))
}

func TestUpdateUserInvalidRole(t *testing.T) {
	svc, repo := newTestService(t)
	seeded := repo.add(User{Name: "Alice", Email: "alice@example.com", Phone: "1234567890", RoleID: 3})

	roleID := int64(99)
	_, err := svc.UpdateUser(context.Background(), seeded.ID, UpdateInput{RoleID: &roleID})
	require.Error(t, err)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestDeleteUserSoftDeletes(t *testing.T) {
	svc, repo := newTestService(t)
	seeded := repo.add(User{Name: "Alice", Email: "alice@example.com", Phone: "1234567890", RoleID: 3})

	require.NoError(t, svc.DeleteUser(context.Background(), seeded.ID, 42))

	stored := repo.users[seeded.ID]
	require.True(t, stored.IsDeleted)
	require.Equal(t, int64(42), *stored.DeletedBy)

	_, err := svc.GetUser(context.Background(), seeded.ID)
	require.Error(t, err)
	require.Equal(t, shared.KindNotFound, shared.KindOf(err))
	require.Equal(t, "User not found", shared.UserSafeMessage(err))

	// Deleting twice reports not found.
	err = svc.DeleteUser(context.Background(), seeded.ID, 42)
	require.Error(t, err)
	require.Equal(t, shared.KindNotFound, shared.KindOf(err))
}

func TestSearchUsersPagination(t *testing.T) {
	svc, repo := newTestService(t)
	repo.add(User{Name: "Alice", Email: "alice@example.com", Phone: "1111111111", RoleID: 3})
	repo.add(User{Name: "Alicia", Email: "alicia@example.com", Phone: "2222222222", RoleID: 3})
	repo.add(User{Name: "Bob", Email: "bob@example.com", Phone: "3333333333", RoleID: 3})

	found, meta, err := svc.SearchUsers(context.Background(), SearchFilters{Name: "ali"}, 1, 1)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, 2, meta.Total)
	require.Equal(t, 2, meta.TotalPages)
}
