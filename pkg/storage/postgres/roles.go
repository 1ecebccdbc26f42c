package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

const roleColumns = `id, name, description, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (rbac.Role, error) {
	var r rbac.Role
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// ListRoles returns every role ordered by name, optionally with permissions.
func (s *Store) ListRoles(ctx context.Context, withPermissions bool) (roles []rbac.Role, err error) {
	defer s.observe("list_roles", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	db := s.reader(ctx)
	rows, err := db.QueryContext(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, classify("list roles", err)
	}
	defer rows.Close()

	roles = []rbac.Role{}
	index := make(map[int64]int)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, classify("list roles", err)
		}
		index[role.ID] = len(roles)
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list roles", err)
	}

	if !withPermissions || len(roles) == 0 {
		return roles, nil
	}

	query := `
		SELECT rp.role_id, ` + permissionColumnsP + `
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		ORDER BY rp.role_id, p.name
	`
	permRows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify("list role permissions", err)
	}
	defer permRows.Close()

	for i := range roles {
		roles[i].Permissions = []rbac.Permission{}
	}
	for permRows.Next() {
		var roleID int64
		var p rbac.Permission
		if err := permRows.Scan(&roleID, &p.ID, &p.Name, &p.Category, &p.Description, &p.CreatedAt); err != nil {
			return nil, classify("list role permissions", err)
		}
		if i, ok := index[roleID]; ok {
			roles[i].Permissions = append(roles[i].Permissions, p)
		}
	}
	if err := permRows.Err(); err != nil {
		return nil, classify("list role permissions", err)
	}
	return roles, nil
}

// GetRole returns a role with its permissions.
func (s *Store) GetRole(ctx context.Context, id int64) (role *rbac.Role, err error) {
	defer s.observe("get_role", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	r, err := scanRole(s.primary.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		return nil, classify(fmt.Sprintf("get role %d", id), err)
	}

	perms, err := s.rolePermissions(ctx, s.primary, id)
	if err != nil {
		return nil, err
	}
	r.Permissions = perms
	return &r, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) rolePermissions(ctx context.Context, q queryer, roleID int64) ([]rbac.Permission, error) {
	query := `
		SELECT ` + permissionColumnsP + `
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.name
	`
	rows, err := q.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, classify("role permissions", err)
	}
	defer rows.Close()

	perms := []rbac.Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, classify("role permissions", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("role permissions", err)
	}
	return perms, nil
}

// CreateRole inserts a role and, when permissions is non-empty, its grants,
// in one transaction.
func (s *Store) CreateRole(ctx context.Context, role *rbac.Role, permissions []string) (err error) {
	defer s.observe("create_role", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	return s.withTx(ctx, "create role", func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO roles (name, description)
			VALUES ($1, $2)
			RETURNING id, created_at, updated_at
		`, role.Name, role.Description).Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
		if err != nil {
			return classify("create role", err)
		}
		if len(permissions) == 0 {
			role.Permissions = []rbac.Permission{}
			return nil
		}
		if err := replaceGrants(ctx, tx, role.ID, permissions); err != nil {
			return err
		}
		role.Permissions, err = s.rolePermissions(ctx, tx, role.ID)
		return err
	})
}

// UpdateRole rewrites a role's name and description and, when permissions is
// non-nil, replaces its grant list. Both happen in one transaction.
func (s *Store) UpdateRole(ctx context.Context, role *rbac.Role, permissions []string) (err error) {
	defer s.observe("update_role", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	op := fmt.Sprintf("update role %d", role.ID)
	return s.withTx(ctx, op, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE roles SET name = $2, description = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING created_at, updated_at
		`, role.ID, role.Name, role.Description).Scan(&role.CreatedAt, &role.UpdatedAt)
		if err != nil {
			return classify(op, err)
		}
		if permissions != nil {
			if err := replaceGrants(ctx, tx, role.ID, permissions); err != nil {
				return err
			}
		}
		role.Permissions, err = s.rolePermissions(ctx, tx, role.ID)
		return err
	})
}

// SetRolePermissions replaces the full grant list of a role.
func (s *Store) SetRolePermissions(ctx context.Context, roleID int64, permissions []string) (role *rbac.Role, err error) {
	defer s.observe("set_role_permissions", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	op := fmt.Sprintf("set permissions of role %d", roleID)
	err = s.withTx(ctx, op, func(tx *sql.Tx) error {
		r, err := scanRole(tx.QueryRowContext(ctx, `
			UPDATE roles SET updated_at = NOW()
			WHERE id = $1
			RETURNING `+roleColumns, roleID))
		if err != nil {
			return classify(op, err)
		}
		if err := replaceGrants(ctx, tx, roleID, permissions); err != nil {
			return err
		}
		r.Permissions, err = s.rolePermissions(ctx, tx, roleID)
		role = &r
		return err
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

// replaceGrants deletes and re-inserts a role's grants by permission name.
// Unknown permission names fail the whole call with storage.ErrConflict.
func replaceGrants(ctx context.Context, tx *sql.Tx, roleID int64, permissions []string) error {
	permissions = uniqueNames(permissions)
	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return classify("clear grants", err)
	}
	if len(permissions) == 0 {
		return nil
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		SELECT $1, id FROM permissions WHERE name = ANY($2)
	`, roleID, pq.Array(permissions))
	if err != nil {
		return classify("insert grants", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("insert grants", err)
	}
	if int(n) != len(permissions) {
		return fmt.Errorf("insert grants: %w: %d of %d permissions exist", storage.ErrConflict, n, len(permissions))
	}
	return nil
}

// DeleteRole removes a role; its grants and memberships cascade.
func (s *Store) DeleteRole(ctx context.Context, id int64) (err error) {
	defer s.observe("delete_role", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	op := fmt.Sprintf("delete role %d", id)
	res, err := s.primary.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return classify(op, err)
	}
	return affectedOne(op, res)
}

// EnsureRole creates the role if missing and returns its id. Used by seeding.
func (s *Store) EnsureRole(ctx context.Context, name, description string) (id int64, err error) {
	defer s.observe("ensure_role", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	err = s.primary.QueryRowContext(ctx, `
		INSERT INTO roles (name, description)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
		RETURNING id
	`, name, description).Scan(&id)
	if err != nil {
		return 0, classify("ensure role "+name, err)
	}
	return id, nil
}

// GrantPermissions adds grants by permission name without removing existing ones.
func (s *Store) GrantPermissions(ctx context.Context, roleID int64, permissions []string) (err error) {
	defer s.observe("grant_permissions", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err = s.primary.ExecContext(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		SELECT $1, id FROM permissions WHERE name = ANY($2)
		ON CONFLICT DO NOTHING
	`, roleID, pq.Array(permissions))
	if err != nil {
		return classify(fmt.Sprintf("grant permissions to role %d", roleID), err)
	}
	return nil
}

func uniqueNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
