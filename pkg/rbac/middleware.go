package rbac

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// PermissionMiddleware binds permission requirements to HTTP routes.
type PermissionMiddleware struct {
	engine *Engine
	logger *observability.Logger
}

// NewPermissionMiddleware creates a new permission middleware
func NewPermissionMiddleware(engine *Engine, logger *observability.Logger) *PermissionMiddleware {
	return &PermissionMiddleware{
		engine: engine,
		logger: observability.OrNop(logger),
	}
}

// Require wraps a handler so it only runs when the request principal holds
// every listed permission. With no requirements the handler runs unchanged.
//
// Responses: 401 without a resolvable principal, 403 on deny, 503 when the
// store failed while deciding.
func (pm *PermissionMiddleware) Require(reqs ...Requirement) func(http.Handler) http.Handler {
	reqs = dedupe(reqs)
	return func(next http.Handler) http.Handler {
		if len(reqs) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}

			decision, err := pm.engine.DecideAll(r.Context(), principal, reqs...)
			switch {
			case errors.Is(err, ErrUnresolvedPrincipal):
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			case err != nil:
				pm.logger.WithError(err).WithField("path", r.URL.Path).Error("authorization check failed")
				httputil.WriteServiceUnavailable(w, "Authorization is temporarily unavailable")
				return
			case decision != Allow:
				pm.logger.WithFields(map[string]interface{}{
					"user_id":     principal.UserID,
					"permissions": strings.Join(Requirements(reqs).Names(), ","),
					"path":        r.URL.Path,
				}).Info("permission denied")
				httputil.WriteForbidden(w, fmt.Sprintf("%s: requires %s", ErrDenied, strings.Join(Requirements(reqs).Names(), ", ")))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAll is shorthand for Require(AllOf(names...)...).
func (pm *PermissionMiddleware) RequireAll(names ...string) func(http.Handler) http.Handler {
	return pm.Require(AllOf(names...)...)
}
