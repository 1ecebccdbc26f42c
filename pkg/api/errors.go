package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

// writeError maps a domain error to an HTTP response. Authorization errors
// are checked first because an unresolved principal also wraps ErrNotFound.
func writeError(w http.ResponseWriter, r *http.Request, logger *observability.Logger, err error) {
	switch {
	case errors.Is(err, httputil.ErrValidation):
		httputil.WriteValidationError(w, err)
	case errors.Is(err, rbac.ErrUnresolvedPrincipal):
		httputil.WriteUnauthorized(w, "Authentication required")
	case errors.Is(err, rbac.ErrDenied):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		httputil.WriteNotFoundError(w, "resource not found")
	case errors.Is(err, storage.ErrConflict):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, storage.ErrUnavailable):
		logger.WithError(err).WithField("path", r.URL.Path).Warn("store unavailable")
		httputil.WriteServiceUnavailable(w, "storage is temporarily unavailable")
	default:
		logger.WithError(err).WithField("path", r.URL.Path).Error("unhandled error")
		httputil.WriteInternalError(w)
	}
}
