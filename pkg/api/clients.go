package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/clients"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/readthrough"
)

// ClientHandlers serves /v1/oauth-clients.
type ClientHandlers struct {
	clients *readthrough.OAuthClients
	logger  *observability.Logger
}

// NewClientHandlers creates OAuth client handlers.
func NewClientHandlers(oc *readthrough.OAuthClients, logger *observability.Logger) *ClientHandlers {
	return &ClientHandlers{clients: oc, logger: logger}
}

// RegisterRoutes registers OAuth client routes.
func (h *ClientHandlers) RegisterRoutes(router *mux.Router, perm *rbac.PermissionMiddleware) {
	router.Handle("/oauth-clients", guarded(perm, h.ListClients, "oauth-clients.read")).Methods(http.MethodGet)
	router.Handle("/oauth-clients", guarded(perm, h.CreateClient, "oauth-clients.write")).Methods(http.MethodPost)
	router.Handle("/oauth-clients/{id}", guarded(perm, h.GetClient, "oauth-clients.read")).Methods(http.MethodGet)
	router.Handle("/oauth-clients/{id}", guarded(perm, h.UpdateClient, "oauth-clients.write")).Methods(http.MethodPut)
	router.Handle("/oauth-clients/{id}", guarded(perm, h.DeleteClient, "oauth-clients.delete")).Methods(http.MethodDelete)
	router.Handle("/oauth-clients/{id}/status", guarded(perm, h.SetClientStatus, "oauth-clients.write")).Methods(http.MethodPut)
	router.Handle("/oauth-clients/{id}/secret", guarded(perm, h.RotateClientSecret, "oauth-clients.write")).Methods(http.MethodPost)
}

type clientStatusRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// ListClients returns one page of clients: ?page=1&page_size=10.
func (h *ClientHandlers) ListClients(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParseQueryInt(r, "page", 1)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	size, err := httputil.ParseQueryInt(r, "page_size", readthrough.DefaultPageSize)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	result, err := h.clients.List(r.Context(), page, size)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, result)
}

// CreateClient registers a client. The secret appears only in this response.
func (h *ClientHandlers) CreateClient(w http.ResponseWriter, r *http.Request) {
	var spec clients.Spec
	if !httputil.ParseAndValidateOrError(w, r, &spec) {
		return
	}
	creds, err := h.clients.Create(r.Context(), spec)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteCreated(w, creds)
}

// GetClient returns one client.
func (h *ClientHandlers) GetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	view, err := h.clients.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, view)
}

// UpdateClient replaces a client's name, redirect URIs and scopes.
func (h *ClientHandlers) UpdateClient(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var spec clients.Spec
	if !httputil.ParseAndValidateOrError(w, r, &spec) {
		return
	}
	view, err := h.clients.Update(r.Context(), id, spec)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, view)
}

// SetClientStatus activates or deactivates a client.
func (h *ClientHandlers) SetClientStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req clientStatusRequest
	if !httputil.ParseAndValidateOrError(w, r, &req) {
		return
	}
	view, err := h.clients.SetActive(r.Context(), id, *req.Active)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, view)
}

// RotateClientSecret issues a new secret.
func (h *ClientHandlers) RotateClientSecret(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	creds, err := h.clients.RotateSecret(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, creds)
}

// DeleteClient removes a client.
func (h *ClientHandlers) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.clients.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httputil.WriteNoContent(w)
}
