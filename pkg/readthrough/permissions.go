package readthrough

import (
	"context"

	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

// PermissionStore is the store surface used for permissions.
type PermissionStore interface {
	ListPermissions(ctx context.Context) ([]rbac.Permission, error)
	GetPermission(ctx context.Context, id int64) (*rbac.Permission, error)
	CreatePermission(ctx context.Context, perm *rbac.Permission) error
	// DeletePermission returns the ids of the roles whose grants it removed.
	DeletePermission(ctx context.Context, id int64) ([]int64, error)
}

// Permissions serves the permission catalog through the cache.
type Permissions struct {
	base
	store PermissionStore
}

// NewPermissions creates the permission orchestrator.
func NewPermissions(store PermissionStore, d Deps) *Permissions {
	return &Permissions{base: newBase(d, "permissions"), store: store}
}

// List returns the whole catalog.
func (p *Permissions) List(ctx context.Context) ([]rbac.Permission, error) {
	return readThrough(ctx, p.base, EntityPermissions, "permissions.list", p.allKey(),
		func(ctx context.Context) ([]rbac.Permission, error) {
			return p.store.ListPermissions(ctx)
		})
}

// Get returns one permission.
func (p *Permissions) Get(ctx context.Context, id int64) (*rbac.Permission, error) {
	perm, err := readThrough(ctx, p.base, EntityPermissions, "permissions.get", p.idKey(id),
		func(ctx context.Context) (rbac.Permission, error) {
			perm, err := p.store.GetPermission(ctx, id)
			if err != nil {
				return rbac.Permission{}, err
			}
			return *perm, nil
		})
	if err != nil {
		return nil, err
	}
	return &perm, nil
}

// Create adds a permission. No role holds it yet, so role projections stay.
func (p *Permissions) Create(ctx context.Context, perm *rbac.Permission) error {
	if err := p.store.CreatePermission(ctx, perm); err != nil {
		return err
	}
	p.inv.Remove(ctx, EntityPermissions, p.idKey(perm.ID), p.allKey())
	return nil
}

// Delete removes a permission. The store reports the roles that held it in
// the same transaction, and each of those projections is invalidated too.
func (p *Permissions) Delete(ctx context.Context, id int64) error {
	holders, err := p.store.DeletePermission(ctx, id)
	if err != nil {
		return err
	}
	p.inv.Remove(ctx, EntityPermissions, p.idKey(id), p.allKey())
	p.inv.Remove(ctx, EntityRoles, roleKeys(p.base, holders...)...)
	return nil
}

func (p *Permissions) idKey(id int64) string {
	return p.keys.Key(string(EntityPermissions), id)
}

func (p *Permissions) allKey() string {
	return p.keys.Key(string(EntityPermissions), "all")
}
