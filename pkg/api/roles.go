package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/readthrough"
)

// RoleHandlers serves /v1/roles.
type RoleHandlers struct {
	roles  *readthrough.Roles
	logger *observability.Logger
}

// NewRoleHandlers creates role handlers.
func NewRoleHandlers(roles *readthrough.Roles, logger *observability.Logger) *RoleHandlers {
	return &RoleHandlers{roles: roles, logger: logger}
}

// RegisterRoutes registers role routes.
func (h *RoleHandlers) RegisterRoutes(router *mux.Router, perm *rbac.PermissionMiddleware) {
	router.Handle("/roles", guarded(perm, h.ListRoles, "roles.read")).Methods(http.MethodGet)
	router.Handle("/roles", guarded(perm, h.CreateRole, "roles.write")).Methods(http.MethodPost)
	router.Handle("/roles/{id}", guarded(perm, h.GetRole, "roles.read")).Methods(http.MethodGet)
	router.Handle("/roles/{id}", guarded(perm, h.UpdateRole, "roles.write")).Methods(http.MethodPut)
	router.Handle("/roles/{id}", guarded(perm, h.DeleteRole, "roles.delete")).Methods(http.MethodDelete)
	router.Handle("/roles/{id}/permissions", guarded(perm, h.SetRolePermissions, "roles.write")).Methods(http.MethodPut)
}

type roleRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Description string   `json:"description" validate:"max=500"`
	Permissions []string `json:"permissions" validate:"omitempty,dive,required"`
}

type rolePermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required,dive,required"`
}

// grantNames normalizes requested permission names the way the catalog
// stores them. An absent list stays nil.
func grantNames(names []string) []string {
	if names == nil {
		return nil
	}
	return rbac.AllOf(names...).Names()
}

// ListRoles lists roles; ?with_permissions=true includes grants.
func (h *RoleHandlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	withPermissions, err := httputil.ParseQueryBool(r, "with_permissions", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	roles, err := h.roles.List(r.Context(), withPermissions)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, roles)
}

// CreateRole creates a role with an optional initial grant list.
func (h *RoleHandlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !httputil.ParseAndValidateOrError(w, r, &req) {
		return
	}
	role := &rbac.Role{Name: req.Name, Description: req.Description}
	if err := h.roles.Create(r.Context(), role, grantNames(req.Permissions)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteCreated(w, role)
}

// GetRole returns a role with its permissions.
func (h *RoleHandlers) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	role, err := h.roles.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, role)
}

// UpdateRole rewrites name and description; a permissions field, when
// present, replaces the grant list.
func (h *RoleHandlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req roleRequest
	if !httputil.ParseAndValidateOrError(w, r, &req) {
		return
	}
	role := &rbac.Role{ID: id, Name: req.Name, Description: req.Description}
	if err := h.roles.Update(r.Context(), role, grantNames(req.Permissions)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, role)
}

// DeleteRole deletes a role.
func (h *RoleHandlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.roles.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httputil.WriteNoContent(w)
}

// SetRolePermissions replaces a role's grants.
func (h *RoleHandlers) SetRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req rolePermissionsRequest
	if !httputil.ParseAndValidateOrError(w, r, &req) {
		return
	}
	role, err := h.roles.SetPermissions(r.Context(), id, grantNames(req.Permissions))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, role)
}
