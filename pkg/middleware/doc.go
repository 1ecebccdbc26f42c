// Package middleware provides HTTP middleware for request authentication and
// rate limiting.
//
// AuthMiddleware reads "Authorization: Bearer <credential>", resolves it with
// an auth.Authenticator and stores the rbac.Principal in the request context.
// Permission checks are layered on top with rbac.PermissionMiddleware.
//
//	authn := middleware.NewAuthMiddleware(auth.Chain{tokens, oidc}, false, logger)
//	router.Use(authn.Handler)
//
// RateLimitMiddleware applies a fixed-window limit per principal, or per
// client IP before authentication. The Redis limiter shares windows across
// instances; the memory limiter is process-local.
package middleware
