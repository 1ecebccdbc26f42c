package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

// AuthMiddleware authenticates bearer credentials and stores the resulting
// rbac.Principal in the request context.
type AuthMiddleware struct {
	authenticator auth.Authenticator
	optional      bool // If true, allow requests without auth
	logger        *observability.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authenticator auth.Authenticator, optional bool, logger *observability.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
		optional:      optional,
		logger:        observability.OrNop(logger),
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		scheme, credential, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(credential) == "" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		principal, err := m.authenticator.Authenticate(r.Context(), strings.TrimSpace(credential))
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				httputil.WriteUnauthorized(w, "invalid or expired token")
				return
			}
			m.logger.WithError(err).Error("authentication backend failed")
			httputil.WriteServiceUnavailable(w, "authentication is temporarily unavailable")
			return
		}

		ctx := rbac.WithPrincipal(r.Context(), principal)
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(principal.UserID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
