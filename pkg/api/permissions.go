package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/readthrough"
)

// PermissionHandlers serves /v1/permissions.
type PermissionHandlers struct {
	permissions *readthrough.Permissions
	logger      *observability.Logger
}

// NewPermissionHandlers creates permission handlers.
func NewPermissionHandlers(permissions *readthrough.Permissions, logger *observability.Logger) *PermissionHandlers {
	return &PermissionHandlers{permissions: permissions, logger: logger}
}

// RegisterRoutes registers permission routes.
func (h *PermissionHandlers) RegisterRoutes(router *mux.Router, perm *rbac.PermissionMiddleware) {
	router.Handle("/permissions", guarded(perm, h.ListPermissions, "permissions.read")).Methods(http.MethodGet)
	router.Handle("/permissions", guarded(perm, h.CreatePermission, "permissions.write")).Methods(http.MethodPost)
	router.Handle("/permissions/{id}", guarded(perm, h.GetPermission, "permissions.read")).Methods(http.MethodGet)
	router.Handle("/permissions/{id}", guarded(perm, h.DeletePermission, "permissions.delete")).Methods(http.MethodDelete)
}

type permissionRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Category    string `json:"category" validate:"max=100"`
	Description string `json:"description" validate:"max=500"`
}

// ListPermissions returns the permission catalog.
func (h *PermissionHandlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.permissions.List(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, perms)
}

// CreatePermission adds a permission to the catalog.
func (h *PermissionHandlers) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if !httputil.ParseAndValidateOrError(w, r, &req) {
		return
	}
	perm := &rbac.Permission{
		Name:        rbac.Require(req.Name).Name(),
		Category:    req.Category,
		Description: req.Description,
	}
	if err := h.permissions.Create(r.Context(), perm); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteCreated(w, perm)
}

// GetPermission returns one permission.
func (h *PermissionHandlers) GetPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	perm, err := h.permissions.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, perm)
}

// DeletePermission removes a permission and its grants.
func (h *PermissionHandlers) DeletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.permissions.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httputil.WriteNoContent(w)
}
