package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

// UserRoleStore manages role memberships. Memberships are read at decision
// time and never cached, so no invalidation follows these writes.
type UserRoleStore interface {
	AssignUserRole(ctx context.Context, userID, roleID int64) error
	RevokeUserRole(ctx context.Context, userID, roleID int64) error
}

// UserHandlers serves /v1/users/{id}/roles.
type UserHandlers struct {
	store  UserRoleStore
	logger *observability.Logger
}

// NewUserHandlers creates membership handlers.
func NewUserHandlers(store UserRoleStore, logger *observability.Logger) *UserHandlers {
	return &UserHandlers{store: store, logger: logger}
}

// RegisterRoutes registers membership routes.
func (h *UserHandlers) RegisterRoutes(router *mux.Router, perm *rbac.PermissionMiddleware) {
	router.Handle("/users/{id}/roles", guarded(perm, h.AssignRole, "users.write")).Methods(http.MethodPost)
	router.Handle("/users/{id}/roles/{role_id}", guarded(perm, h.RevokeRole, "users.write")).Methods(http.MethodDelete)
}

type assignRoleRequest struct {
	RoleID int64 `json:"role_id" validate:"required,gt=0"`
}

// AssignRole adds a user to a role.
func (h *UserHandlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req assignRoleRequest
	if !httputil.ParseAndValidateOrError(w, r, &req) {
		return
	}
	if err := h.store.AssignUserRole(r.Context(), userID, req.RoleID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httputil.WriteNoContent(w)
}

// RevokeRole removes a user from a role.
func (h *UserHandlers) RevokeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "role_id")
	if !ok {
		return
	}
	if err := h.store.RevokeUserRole(r.Context(), userID, roleID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httputil.WriteNoContent(w)
}
