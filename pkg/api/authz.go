package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

// AuthzHandlers explains decisions for the calling principal.
type AuthzHandlers struct {
	engine *rbac.Engine
	logger *observability.Logger
}

// NewAuthzHandlers creates the explain handlers.
func NewAuthzHandlers(engine *rbac.Engine, logger *observability.Logger) *AuthzHandlers {
	return &AuthzHandlers{engine: engine, logger: logger}
}

// RegisterRoutes registers /authz/check. It needs authentication only.
func (h *AuthzHandlers) RegisterRoutes(router *mux.Router, _ *rbac.PermissionMiddleware) {
	router.HandleFunc("/authz/check", h.Check).Methods(http.MethodPost)
}

type checkRequest struct {
	Permissions []string `json:"permissions" validate:"required,min=1,max=50,dive,required"`
}

type checkResponse struct {
	Allowed bool               `json:"allowed"`
	Results []rbac.Explanation `json:"results"`
}

// Check evaluates each permission for the caller. Allowed is true only when
// every permission is granted.
func (h *AuthzHandlers) Check(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	if principal == nil {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}
	var req checkRequest
	if !httputil.ParseAndValidateOrError(w, r, &req) {
		return
	}

	resp := checkResponse{Allowed: true, Results: []rbac.Explanation{}}
	for _, requirement := range rbac.AllOf(req.Permissions...) {
		ex, err := h.engine.Explain(r.Context(), principal, requirement)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		resp.Allowed = resp.Allowed && ex.Allowed
		resp.Results = append(resp.Results, ex)
	}
	_ = httputil.WriteSuccess(w, resp)
}
