package rbac

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDenied is returned when a principal lacks a required permission.
	ErrDenied = errors.New("rbac: permission denied")

	// ErrUnresolvedPrincipal is returned when no principal is present or its
	// roles cannot be resolved (for example the user was deleted mid-session).
	ErrUnresolvedPrincipal = errors.New("rbac: unresolved principal")
)

// Principal is the authenticated caller of a request. Roles are not carried;
// they are resolved at decision time.
type Principal struct {
	UserID  int64  `json:"user_id"`
	Subject string `json:"subject"`
}

// Permission is a named capability such as "users.read".
type Permission struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Role is a named set of permissions.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// PermissionNames returns the names of the role's loaded permissions.
func (r Role) PermissionNames() []string {
	names := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		names = append(names, p.Name)
	}
	return names
}

// Grant binds a permission to a role.
type Grant struct {
	RoleID       int64     `json:"role_id"`
	PermissionID int64     `json:"permission_id"`
	GrantedAt    time.Time `json:"granted_at"`
}

// UserRole is a user's membership in a role.
type UserRole struct {
	UserID    int64     `json:"user_id"`
	RoleID    int64     `json:"role_id"`
	GrantedAt time.Time `json:"granted_at"`
}

// Decision is the outcome of an authorization check.
type Decision int

const (
	// Deny is the zero value so an unset decision never grants access.
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Allowed reports whether the decision grants access.
func (d Decision) Allowed() bool {
	return d == Allow
}

// GrantStore answers whether any of a set of roles holds a permission.
type GrantStore interface {
	HasGrant(ctx context.Context, roleNames []string, permission string) (bool, error)
}

// RoleResolver resolves the role names currently held by a user.
// It returns storage.ErrNotFound when the user does not exist.
type RoleResolver interface {
	RoleNames(ctx context.Context, userID int64) ([]string, error)
}
