package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-admin/meridian/internal/platform/httpx"
	"github.com/meridian-admin/meridian/internal/shared"
)

// Handler wires HTTP endpoints for role management.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	guard     Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		guard:     guard,
	}
}

// MountRoutes registers role routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("READ_ROLE", "MANAGE_ROLE"))
		r.Get("/", h.listRoles)
		r.Get("/search", h.searchRoles)
		r.Get("/{id}", h.getRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("CREATE_ROLE", "MANAGE_ROLE"))
		r.Post("/", h.createRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("UPDATE_ROLE", "MANAGE_ROLE"))
		r.Put("/{id}", h.updateRole)
		r.Post("/{id}/permissions", h.setPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("DELETE_ROLE", "MANAGE_ROLE"))
		r.Delete("/{id}", h.deleteRole)
	})
}

type createRoleRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=50"`
	Description string `json:"description" validate:"required,min=5,max=200"`
}

type updateRoleRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=50"`
	Description *string `json:"description" validate:"omitempty,min=5,max=200"`
}

type setPermissionsRequest struct {
	PermissionIDs []int64 `json:"permissionIds" validate:"required,min=1"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := shared.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		h.respondError(w, r, "create role", err)
		return
	}
	httpx.Success(w, http.StatusCreated, "Role created successfully", role)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondError(w, r, "list roles", err)
		return
	}
	httpx.Success(w, http.StatusOK, "Roles fetched successfully", roles)
}

func (h *Handler) searchRoles(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "limit", 10)
	roles, pagination, err := h.service.SearchRoles(r.Context(), r.URL.Query().Get("name"), page, perPage)
	if err != nil {
		h.respondError(w, r, "search roles", err)
		return
	}
	httpx.Success(w, http.StatusOK, "Roles fetched successfully", map[string]any{
		"roles":      roles,
		"pagination": pagination,
	})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "get role", err)
		return
	}
	httpx.Success(w, http.StatusOK, "Role fetched successfully", role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := shared.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, UpdateRoleInput{Name: req.Name, Description: req.Description})
	if err != nil {
		h.respondError(w, r, "update role", err)
		return
	}
	httpx.Success(w, http.StatusOK, "Role updated successfully", role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var actorID int64
	if principal := shared.PrincipalFromContext(r.Context()); principal != nil {
		actorID = principal.ID
	}
	if err := h.service.DeleteRole(r.Context(), id, actorID); err != nil {
		h.respondError(w, r, "delete role", err)
		return
	}
	httpx.Success(w, http.StatusOK, "Role deleted successfully", nil)
}

func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req setPermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := shared.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.SetRolePermissions(r.Context(), id, req.PermissionIDs)
	if err != nil {
		h.respondError(w, r, "set role permissions", err)
		return
	}
	httpx.Success(w, http.StatusOK, "Permissions updated successfully", role)
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
		return 0, shared.Validation("Invalid role id")
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
