package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sentra-auth/sentra/internal/authz"
	"github.com/sentra-auth/sentra/internal/platform/httpx"
	"github.com/sentra-auth/sentra/internal/shared"
)

// Handler manages user administration endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   authz.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(authz.PermEditUsers, authz.PermManageRoles))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.getUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(authz.PermManageRoles))
		r.Put("/{id}/role", h.setRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(authz.PermSuspendUsers))
		r.Put("/{id}/status", h.setStatus)
	})
}

type userView struct {
	ID       int64      `json:"id"`
	Email    string     `json:"email"`
	Name     string     `json:"name"`
	Role     authz.Role `json:"role"`
	IsActive bool       `json:"is_active"`
}

func toView(u User) userView {
	return userView{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, IsActive: u.IsActive}
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]userView, len(list))
	for i, u := range list {
		views[i] = toView(u)
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(user))
}

func (h *Handler) setRole(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	role, err := authz.ParseRole(req.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.SetRole(r.Context(), id, role, principal.UserID); err != nil {
		h.logger.Error("set role", slog.Int64("user_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "role": role})
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req struct {
		Active *bool `json:"active"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Active == nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "active flag required")
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.SetStatus(r.Context(), id, *req.Active, principal.UserID); err != nil {
		h.logger.Error("set status", slog.Int64("user_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "is_active": *req.Active})
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.ErrValidation
	}
	return id, nil
}
