package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-admin/meridian/internal/platform/httpx"
	"github.com/meridian-admin/meridian/internal/rbac"
	"github.com/meridian-admin/meridian/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	guard     rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		guard:     guard,
	}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("READ_USER", "MANAGE_USER"))
		r.Get("/", h.listUsers)
		r.Get("/search", h.searchUsers)
		r.Get("/{id}", h.getUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("CREATE_USER", "MANAGE_USER"))
		r.Post("/", h.createUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("UPDATE_USER", "MANAGE_USER"))
		r.Put("/{id}", h.updateUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("DELETE_USER", "MANAGE_USER"))
		r.Delete("/{id}", h.deleteUser)
	})
}

type createUserRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required,len=10,numeric"`
	Password string `json:"password" validate:"required,min=6"`
	RoleID   int64  `json:"roleId" validate:"required,gt=0"`
}

type updateUserRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=2,max=50"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Phone    *string `json:"phone" validate:"omitempty,len=10,numeric"`
	Password *string `json:"password" validate:"omitempty,min=6"`
	RoleID   *int64  `json:"roleId" validate:"omitempty,gt=0"`
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := shared.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.CreateUser(r.Context(), CreateInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		RoleID:   req.RoleID,
	})
	if err != nil {
		h.respondError(w, r, "create user", err)
		return
	}
	httpx.Success(w, http.StatusCreated, "User created successfully", user)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.respondError(w, r, "list users", err)
		return
	}
	httpx.Success(w, http.StatusOK, "Users fetched successfully", items)
}

func (h *Handler) searchUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters := SearchFilters{
		Name:  query.Get("name"),
		Email: query.Get("email"),
	}
	if roleID, err := strconv.ParseInt(query.Get("roleId"), 10, 64); err == nil {
		filters.RoleID = roleID
	}
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "limit", 10)

	items, pagination, err := h.service.SearchUsers(r.Context(), filters, page, perPage)
	if err != nil {
		h.respondError(w, r, "search users", err)
		return
	}
	httpx.Success(w, http.StatusOK, "Users fetched successfully", map[string]any{
		"users":      items,
		"pagination": pagination,
	})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "get user", err)
		return
	}
	httpx.Success(w, http.StatusOK, "User fetched successfully", user)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := shared.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.UpdateUser(r.Context(), id, UpdateInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		RoleID:   req.RoleID,
	})
	if err != nil {
		h.respondError(w, r, "update user", err)
		return
	}
	httpx.Success(w, http.StatusOK, "User updated successfully", user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var actorID int64
	if principal := shared.PrincipalFromContext(r.Context()); principal != nil {
		actorID = principal.ID
	}
	if err := h.service.DeleteUser(r.Context(), id, actorID); err != nil {
		h.respondError(w, r, "delete user", err)
		return
	}
	httpx.Success(w, http.StatusOK, "User deleted successfully", nil)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if shared.KindOf(err) == shared.KindInternal && h.logger != nil {
		h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validation("Invalid user id")
	}
	return id, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
