package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-admin/meridian/internal/platform/httpx"
	"github.com/meridian-admin/meridian/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Post("/refresh", h.refresh)
	r.Post("/logout", h.logout)
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required,len=10,numeric"`
	Password string `json:"password" validate:"required,min=6"`
	RoleID   int64  `json:"roleId" validate:"required,gt=0"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"omitempty,len=10,numeric"`
	Password string `json:"password" validate:"required,min=6"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := shared.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Register(r.Context(), RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		RoleID:   req.RoleID,
	})
	if err != nil {
		h.respondError(w, "register", err)
		return
	}
	httpx.Success(w, http.StatusCreated, "User registered successfully", result)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := shared.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.Email == "" && req.Phone == "" {
		httpx.Error(w, http.StatusBadRequest, "email or phone is required")
		return
	}
	result, err := h.service.Login(r.Context(), LoginInput{
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		h.respondError(w, "login", err)
		return
	}
	httpx.Success(w, http.StatusOK, "Login successful", result)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.respondError(w, "refresh", err)
		return
	}
	httpx.Success(w, http.StatusOK, "Token refreshed successfully", pair)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	_ = httpx.DecodeJSON(r, &req)
	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		h.respondError(w, "logout", err)
		return
	}
	httpx.Success(w, http.StatusOK, "Logout successful", nil)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindInternal && h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
