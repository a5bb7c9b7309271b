package authz

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sentra-auth/sentra/internal/platform/httpx"
	"github.com/sentra-auth/sentra/internal/shared"
)

// Handler exposes the authorization admin API.
type Handler struct {
	logger   *slog.Logger
	resolver *Resolver
	manager  *Manager
	table    *RoleTable
	guard    Middleware
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, resolver *Resolver, manager *Manager, table *RoleTable, guard Middleware) *Handler {
	return &Handler{
		logger:   logger,
		resolver: resolver,
		manager:  manager,
		table:    table,
		guard:    guard,
		validate: validator.New(),
	}
}

// MountRoutes registers authorization routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(PermEditUsers, PermManageRoles))
		r.Get("/users/{id}/permissions", h.userPermissions)
		r.Get("/users/{id}/permissions/{permission}", h.checkPermission)
		r.Get("/roles", h.roleTable)
		r.Get("/catalog", h.catalog)
		r.Post("/cache/invalidate/{id}", h.invalidate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(PermEditUsers))
		r.Post("/grants", h.grant)
		r.Delete("/grants", h.revoke)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(PermManageRoles))
		r.Put("/roles/{role}/permissions", h.setRolePermissions)
	})
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	perms, err := h.resolver.UserPermissions(r.Context(), userID)
	if err != nil {
		h.logger.Error("list user permissions", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"permissions": perms,
	})
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, err := ParsePermission(chi.URLParam(r, "permission"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	held, err := h.resolver.HasPermission(r.Context(), userID, perm)
	if err != nil {
		h.logger.Error("check permission", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":    userID,
		"permission": perm,
		"granted":    held,
	})
}

func (h *Handler) roleTable(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.table.Snapshot())
}

func (h *Handler) catalog(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{
		"roles":       Roles(),
		"permissions": Permissions(),
	})
}

type grantRequest struct {
	UserID     int64  `json:"user_id" validate:"required"`
	Permission string `json:"permission" validate:"required"`
	ExpiresAt  string `json:"expires_at,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	perm, err := ParsePermission(req.Permission)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expires_at must be RFC3339")
			return
		}
		expiresAt = &t
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	if err := h.manager.Grant(r.Context(), req.UserID, perm, principal.UserID, expiresAt); err != nil {
		h.logger.Error("grant", slog.Int64("user_id", req.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"user_id":    req.UserID,
		"permission": perm,
	})
}

type revokeRequest struct {
	UserID     int64  `json:"user_id" validate:"required"`
	Permission string `json:"permission" validate:"required"`
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	perm, err := ParsePermission(req.Permission)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	if err := h.manager.Revoke(r.Context(), req.UserID, perm, principal.UserID); err != nil {
		h.logger.Error("revoke", slog.Int64("user_id", req.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setRolePermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required"`
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	role, err := ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req setRolePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	perms := make([]Permission, 0, len(req.Permissions))
	for _, raw := range req.Permissions {
		perm, err := ParsePermission(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		perms = append(perms, perm)
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	if err := h.manager.SetRolePermissions(r.Context(), role, perms, principal.UserID); err != nil {
		h.logger.Error("set role permissions", slog.String("role", string(role)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role":        role,
		"permissions": h.table.PermissionsFor(role).List(),
	})
}

func (h *Handler) invalidate(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.manager.InvalidateUser(r.Context(), userID)
	w.WriteHeader(http.StatusAccepted)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id", shared.ErrValidation)
	}
	return id, nil
}
