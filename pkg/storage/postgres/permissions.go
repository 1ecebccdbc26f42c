package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

const (
	permissionColumns  = `id, name, category, description, created_at`
	permissionColumnsP = `p.id, p.name, p.category, p.description, p.created_at`
)

func scanPermission(row rowScanner) (rbac.Permission, error) {
	var p rbac.Permission
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Description, &p.CreatedAt)
	return p, err
}

// ListPermissions returns every permission ordered by name.
func (s *Store) ListPermissions(ctx context.Context) (perms []rbac.Permission, err error) {
	defer s.observe("list_permissions", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.reader(ctx).QueryContext(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY name`)
	if err != nil {
		return nil, classify("list permissions", err)
	}
	defer rows.Close()

	perms = []rbac.Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, classify("list permissions", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list permissions", err)
	}
	return perms, nil
}

// GetPermission returns one permission by id.
func (s *Store) GetPermission(ctx context.Context, id int64) (perm *rbac.Permission, err error) {
	defer s.observe("get_permission", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	p, err := scanPermission(s.primary.QueryRowContext(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id))
	if err != nil {
		return nil, classify(fmt.Sprintf("get permission %d", id), err)
	}
	return &p, nil
}

// CreatePermission inserts a permission; a duplicate name is storage.ErrConflict.
func (s *Store) CreatePermission(ctx context.Context, perm *rbac.Permission) (err error) {
	defer s.observe("create_permission", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	err = s.primary.QueryRowContext(ctx, `
		INSERT INTO permissions (name, category, description)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, perm.Name, perm.Category, perm.Description).Scan(&perm.ID, &perm.CreatedAt)
	if err != nil {
		return classify("create permission "+perm.Name, err)
	}
	return nil
}

// DeletePermission removes a permission and its grants in one transaction and
// returns the ids of the roles that held it. The permission row is locked
// first so no grant can be added between reading the holders and the delete.
func (s *Store) DeletePermission(ctx context.Context, id int64) (roleIDs []int64, err error) {
	defer s.observe("delete_permission", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	op := fmt.Sprintf("delete permission %d", id)
	err = s.withTx(ctx, op, func(tx *sql.Tx) error {
		var locked int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM permissions WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if err != nil {
			return classify(op, err)
		}

		rows, err := tx.QueryContext(ctx,
			`DELETE FROM role_permissions WHERE permission_id = $1 RETURNING role_id`, id)
		if err != nil {
			return classify(op, err)
		}
		defer rows.Close()

		roleIDs = []int64{}
		for rows.Next() {
			var roleID int64
			if err := rows.Scan(&roleID); err != nil {
				return classify(op, err)
			}
			roleIDs = append(roleIDs, roleID)
		}
		if err := rows.Err(); err != nil {
			return classify(op, err)
		}
		rows.Close()

		res, err := tx.ExecContext(ctx, `DELETE FROM permissions WHERE id = $1`, id)
		if err != nil {
			return classify(op, err)
		}
		return affectedOne(op, res)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(roleIDs, func(i, j int) bool { return roleIDs[i] < roleIDs[j] })
	return roleIDs, nil
}

// EnsurePermission upserts a permission by name. Used by seeding.
func (s *Store) EnsurePermission(ctx context.Context, perm *rbac.Permission) (err error) {
	defer s.observe("ensure_permission", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	err = s.primary.QueryRowContext(ctx, `
		INSERT INTO permissions (name, category, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
			SET category = EXCLUDED.category, description = EXCLUDED.description
		RETURNING id, created_at
	`, perm.Name, perm.Category, perm.Description).Scan(&perm.ID, &perm.CreatedAt)
	if err != nil {
		return classify("ensure permission "+perm.Name, err)
	}
	return nil
}
