package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/platinummonkey/gatehouse/pkg/storage"
)

// HasGrant reports whether any of the named roles holds the permission.
// It always runs on the primary so decisions see committed grants.
func (s *Store) HasGrant(ctx context.Context, roleNames []string, permission string) (ok bool, err error) {
	defer s.observe("has_grant", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `
		SELECT EXISTS (
			SELECT 1
			FROM role_permissions rp
			JOIN roles r ON r.id = rp.role_id
			JOIN permissions p ON p.id = rp.permission_id
			WHERE r.name = ANY($1) AND p.name = $2
		)
	`
	if err := s.primary.QueryRowContext(ctx, query, pq.Array(roleNames), permission).Scan(&ok); err != nil {
		return false, classify("has grant", err)
	}
	return ok, nil
}

// RoleNames returns the names of the roles a user holds, sorted.
// A user with no memberships yields an empty slice; a missing user yields
// storage.ErrNotFound.
func (s *Store) RoleNames(ctx context.Context, userID int64) (names []string, err error) {
	defer s.observe("role_names", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `
		SELECT r.name
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles r ON r.id = ur.role_id
		WHERE u.id = $1
		ORDER BY r.name
	`
	rows, err := s.primary.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, classify("role names", err)
	}
	defer rows.Close()

	found := false
	names = []string{}
	for rows.Next() {
		found = true
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			return nil, classify("role names", err)
		}
		if name.Valid {
			names = append(names, name.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classify("role names", err)
	}
	if !found {
		return nil, fmt.Errorf("role names for user %d: %w", userID, storage.ErrNotFound)
	}
	return names, nil
}
