package readthrough

import (
	"context"

	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

// RoleStore is the store surface used for roles.
type RoleStore interface {
	ListRoles(ctx context.Context, withPermissions bool) ([]rbac.Role, error)
	GetRole(ctx context.Context, id int64) (*rbac.Role, error)
	CreateRole(ctx context.Context, role *rbac.Role, permissions []string) error
	UpdateRole(ctx context.Context, role *rbac.Role, permissions []string) error
	DeleteRole(ctx context.Context, id int64) error
	SetRolePermissions(ctx context.Context, roleID int64, permissions []string) (*rbac.Role, error)
}

// Roles serves role reads through the cache and invalidates on writes.
type Roles struct {
	base
	store RoleStore
}

// NewRoles creates the role orchestrator.
func NewRoles(store RoleStore, d Deps) *Roles {
	return &Roles{base: newBase(d, "roles"), store: store}
}

// List returns every role, optionally with its permissions.
func (r *Roles) List(ctx context.Context, withPermissions bool) ([]rbac.Role, error) {
	return readThrough(ctx, r.base, EntityRoles, "roles.list", r.listKey(withPermissions),
		func(ctx context.Context) ([]rbac.Role, error) {
			return r.store.ListRoles(ctx, withPermissions)
		})
}

// Get returns one role with its permissions.
func (r *Roles) Get(ctx context.Context, id int64) (*rbac.Role, error) {
	role, err := readThrough(ctx, r.base, EntityRoles, "roles.get", r.idKey(id),
		func(ctx context.Context) (rbac.Role, error) {
			role, err := r.store.GetRole(ctx, id)
			if err != nil {
				return rbac.Role{}, err
			}
			return *role, nil
		})
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// Create inserts role with the named permissions.
func (r *Roles) Create(ctx context.Context, role *rbac.Role, permissions []string) error {
	if err := r.store.CreateRole(ctx, role, permissions); err != nil {
		return err
	}
	r.invalidate(ctx, role.ID)
	return nil
}

// Update rewrites a role; a nil permission list leaves grants untouched.
func (r *Roles) Update(ctx context.Context, role *rbac.Role, permissions []string) error {
	if err := r.store.UpdateRole(ctx, role, permissions); err != nil {
		return err
	}
	r.invalidate(ctx, role.ID)
	return nil
}

// Delete removes a role together with its grants and memberships.
func (r *Roles) Delete(ctx context.Context, id int64) error {
	if err := r.store.DeleteRole(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

// SetPermissions replaces a role's grant list.
func (r *Roles) SetPermissions(ctx context.Context, id int64, permissions []string) (*rbac.Role, error) {
	role, err := r.store.SetRolePermissions(ctx, id, permissions)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, id)
	return role, nil
}

func (r *Roles) invalidate(ctx context.Context, ids ...int64) {
	r.inv.Remove(ctx, EntityRoles, roleKeys(r.base, ids...)...)
}

func (r *Roles) idKey(id int64) string {
	return r.keys.Key(string(EntityRoles), id)
}

func (r *Roles) listKey(withPermissions bool) string {
	if withPermissions {
		return r.keys.Key(string(EntityRoles), "all", "with-permissions")
	}
	return r.keys.Key(string(EntityRoles), "all")
}

// roleKeys returns the id keys for ids plus both role listings.
func roleKeys(b base, ids ...int64) []string {
	keys := make([]string, 0, len(ids)+2)
	for _, id := range ids {
		keys = append(keys, b.keys.Key(string(EntityRoles), id))
	}
	return append(keys,
		b.keys.Key(string(EntityRoles), "all"),
		b.keys.Key(string(EntityRoles), "all", "with-permissions"),
	)
}
