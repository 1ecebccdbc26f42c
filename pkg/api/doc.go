// Package api exposes roles, permissions, OAuth clients and user role
// memberships over HTTP.
//
// Every /v1 route is authenticated and bound to the permissions it requires
// through rbac.PermissionMiddleware, so a handler never runs for a denied
// caller. Reads go through the readthrough orchestrators; writes go to the
// store and then invalidate the affected cache entries.
//
// Errors map to status codes as follows:
//
//	storage.ErrNotFound            404
//	storage.ErrConflict            409
//	storage.ErrUnavailable         503
//	httputil.ErrValidation         400
//	rbac.ErrDenied                 403
//	rbac.ErrUnresolvedPrincipal    401
package api
