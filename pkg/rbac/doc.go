// Package rbac decides whether an authenticated principal may perform an
// operation.
//
// # Model
//
// Permissions are flat names such as "roles.write". Roles hold permissions
// through grants, and users hold roles through memberships. A principal only
// carries its user id; role membership is resolved on every decision so that
// revoking a role or a grant takes effect on the next request.
//
// # Binding requirements to routes
//
// Routes declare what they need with requirement values. Multiple
// requirements are AND-ed:
//
//	perms := rbac.NewPermissionMiddleware(engine, logger)
//	router.Handle("/v1/roles/{id}/permissions",
//		perms.Require(rbac.Require("roles.write"), rbac.Require("permissions.read"))(handler),
//	).Methods(http.MethodPut)
//
// The middleware answers 401 when the request has no principal, 403 on deny
// and 503 when the store could not be consulted.
//
// # Decisions
//
//	engine := rbac.NewEngine(store, store, logger, metrics)
//	decision, err := engine.Decide(ctx, principal, rbac.Require("users.read"))
//
// Decide allows only when some role held by the principal is granted the
// permission. Every other outcome denies, including a principal with no
// roles, an unknown permission name and a store failure. Decisions are never
// cached.
//
// # Seeding
//
// ApplySeed upserts a YAML catalog of permissions, roles and bootstrap users.
// DefaultSeed returns the built-in catalog, which defines an admin role
// holding every permission ("*").
package rbac
