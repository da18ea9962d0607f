package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-admin/meridian/internal/platform/httpx"
	"github.com/meridian-admin/meridian/internal/shared"
)

// PermissionsHandler exposes the permission catalog.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
}

// NewPermissionsHandler builds a PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPermissions)
	r.Get("/my-permissions", h.myPermissions)
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		if h.logger != nil {
			h.logger.Error("list permissions", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, "Permissions fetched successfully", perms)
}

func (h *PermissionsHandler) myPermissions(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Error(w, http.StatusUnauthorized, "Access token required")
		return
	}
	summary, perms, err := h.service.EffectivePermissions(r.Context(), principal.ID)
	if err != nil {
		if shared.KindOf(err) == shared.KindInternal && h.logger != nil {
			h.logger.Error("effective permissions", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, "User permissions fetched successfully", map[string]any{
		"user":        summary,
		"permissions": perms,
	})
}
