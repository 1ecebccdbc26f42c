package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/clients"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db, WithQueryTimeout(time.Second), WithMetrics(observability.NewMetrics(nil))), mock
}

var (
	roleCols       = []string{"id", "name", "description", "created_at", "updated_at"}
	permissionCols = []string{"id", "name", "category", "description", "created_at"}
	clientCols     = []string{"id", "client_id", "name", "redirect_uris", "scopes", "active", "secret_hash", "secret_prefix", "created_at", "updated_at"}
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, storage.ErrNotFound},
		{"unique violation", &pq.Error{Code: "23505", Message: "duplicate key"}, storage.ErrConflict},
		{"foreign key violation", &pq.Error{Code: "23503", Message: "fk"}, storage.ErrConflict},
		{"connection failure", errors.New("dial tcp: connection refused"), storage.ErrUnavailable},
		{"timeout", context.DeadlineExceeded, storage.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", tt.err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.NoError(t, classify("op", nil))
}

func TestStore_HasGrant(t *testing.T) {
	t.Run("granted", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(sqlmock.AnyArg(), "users.read").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		ok, err := store.HasGrant(context.Background(), []string{"admin", "viewer"}, "users.read")
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("store unavailable", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT EXISTS`).WillReturnError(errors.New("connection reset"))

		ok, err := store.HasGrant(context.Background(), []string{"admin"}, "users.read")
		assert.False(t, ok)
		assert.ErrorIs(t, err, storage.ErrUnavailable)
	})
}

func TestStore_RoleNames(t *testing.T) {
	t.Run("user with roles", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`FROM users u\s+LEFT JOIN user_roles`).
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("admin").AddRow("viewer"))

		names, err := store.RoleNames(context.Background(), 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"admin", "viewer"}, names)
	})

	t.Run("user without roles", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`FROM users u`).
			WithArgs(int64(6)).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow(nil))

		names, err := store.RoleNames(context.Background(), 6)
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("missing user", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`FROM users u`).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"name"}))

		_, err := store.RoleNames(context.Background(), 7)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestStore_ListRoles(t *testing.T) {
	now := time.Now()

	t.Run("without permissions", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT id, name, description, created_at, updated_at FROM roles ORDER BY name`).
			WillReturnRows(sqlmock.NewRows(roleCols).
				AddRow(1, "admin", "all", now, now).
				AddRow(2, "viewer", "read", now, now))

		roles, err := store.ListRoles(context.Background(), false)
		require.NoError(t, err)
		require.Len(t, roles, 2)
		assert.Nil(t, roles[0].Permissions)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with permissions", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`FROM roles ORDER BY name`).
			WillReturnRows(sqlmock.NewRows(roleCols).
				AddRow(1, "admin", "all", now, now).
				AddRow(2, "empty", "", now, now))
		mock.ExpectQuery(`FROM role_permissions rp\s+JOIN permissions p`).
			WillReturnRows(sqlmock.NewRows(append([]string{"role_id"}, permissionCols...)).
				AddRow(1, 10, "roles.read", "roles", "", now).
				AddRow(1, 11, "roles.write", "roles", "", now))

		roles, err := store.ListRoles(context.Background(), true)
		require.NoError(t, err)
		assert.Equal(t, []string{"roles.read", "roles.write"}, roles[0].PermissionNames())
		assert.NotNil(t, roles[1].Permissions)
		assert.Empty(t, roles[1].Permissions)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_GetRole(t *testing.T) {
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`FROM roles WHERE id = \$1`).
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows(roleCols).AddRow(42, "auditor", "", now, now))
		mock.ExpectQuery(`WHERE rp.role_id = \$1`).
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows(permissionCols).AddRow(3, "users.read", "users", "", now))

		role, err := store.GetRole(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, "auditor", role.Name)
		assert.Equal(t, []string{"users.read"}, role.PermissionNames())
	})

	t.Run("not found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`FROM roles WHERE id = \$1`).
			WithArgs(int64(99)).
			WillReturnError(sql.ErrNoRows)

		_, err := store.GetRole(context.Background(), 99)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestStore_CreateRole(t *testing.T) {
	now := time.Now()

	t.Run("with permissions", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO roles`).
			WithArgs("editor", "edits").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(7, now, now))
		mock.ExpectExec(`DELETE FROM role_permissions WHERE role_id = \$1`).
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO role_permissions`).
			WithArgs(int64(7), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectQuery(`WHERE rp.role_id = \$1`).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(permissionCols).
				AddRow(1, "roles.read", "roles", "", now).
				AddRow(2, "roles.write", "roles", "", now))
		mock.ExpectCommit()

		role := &rbac.Role{Name: "editor", Description: "edits"}
		require.NoError(t, store.CreateRole(context.Background(), role, []string{"roles.read", "roles.write", "roles.read"}))
		assert.Equal(t, int64(7), role.ID)
		assert.Len(t, role.Permissions, 2)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate name", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO roles`).
			WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})
		mock.ExpectRollback()

		err := store.CreateRole(context.Background(), &rbac.Role{Name: "admin"}, nil)
		assert.ErrorIs(t, err, storage.ErrConflict)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_SetRolePermissions(t *testing.T) {
	now := time.Now()

	t.Run("unknown permission rolls back", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE roles SET updated_at = NOW\(\)`).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(roleCols).AddRow(7, "editor", "", now, now))
		mock.ExpectExec(`DELETE FROM role_permissions`).
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectExec(`INSERT INTO role_permissions`).
			WithArgs(int64(7), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		_, err := store.SetRolePermissions(context.Background(), 7, []string{"roles.read", "nope.nope"})
		assert.ErrorIs(t, err, storage.ErrConflict)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing role", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE roles SET updated_at`).
			WithArgs(int64(8)).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := store.SetRolePermissions(context.Background(), 8, []string{"roles.read"})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("clear all", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE roles SET updated_at`).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(roleCols).AddRow(7, "editor", "", now, now))
		mock.ExpectExec(`DELETE FROM role_permissions`).
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectQuery(`WHERE rp.role_id = \$1`).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(permissionCols))
		mock.ExpectCommit()

		role, err := store.SetRolePermissions(context.Background(), 7, nil)
		require.NoError(t, err)
		assert.Empty(t, role.Permissions)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_UpdateRole(t *testing.T) {
	now := time.Now()
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE roles SET name = \$2, description = \$3`).
		WithArgs(int64(7), "editor", "new").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectQuery(`WHERE rp.role_id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(permissionCols))
	mock.ExpectCommit()

	role := &rbac.Role{ID: 7, Name: "editor", Description: "new"}
	require.NoError(t, store.UpdateRole(context.Background(), role, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteRole(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM roles WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM roles WHERE id = \$1`).
		WithArgs(int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.DeleteRole(context.Background(), 7))
	assert.ErrorIs(t, store.DeleteRole(context.Background(), 8), storage.ErrNotFound)
}

func TestStore_DeletePermissionReturnsHolders(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM permissions WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(`DELETE FROM role_permissions WHERE permission_id = \$1 RETURNING role_id`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"role_id"}).AddRow(7).AddRow(1))
	mock.ExpectExec(`DELETE FROM permissions WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ids, err := store.DeletePermission(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 7}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeletePermissionMissingRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM permissions WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(9)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	ids, err := store.DeletePermission(context.Background(), 9)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Nil(t, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Permissions(t *testing.T) {
	now := time.Now()
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM permissions ORDER BY name`).
		WillReturnRows(sqlmock.NewRows(permissionCols).
			AddRow(1, "roles.read", "roles", "", now).
			AddRow(2, "users.read", "users", "", now))
	mock.ExpectQuery(`FROM permissions WHERE id = \$1`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(permissionCols).AddRow(2, "users.read", "users", "", now))
	mock.ExpectQuery(`INSERT INTO permissions`).
		WithArgs("users.read", "users", "").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectQuery(`INSERT INTO permissions .*ON CONFLICT \(name\) DO UPDATE`).
		WithArgs("users.write", "users", "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(9, now))

	ctx := context.Background()
	perms, err := store.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Len(t, perms, 2)

	perm, err := store.GetPermission(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "users.read", perm.Name)

	err = store.CreatePermission(ctx, &rbac.Permission{Name: "users.read", Category: "users"})
	assert.ErrorIs(t, err, storage.ErrConflict)

	ensured := &rbac.Permission{Name: "users.write", Category: "users"}
	require.NoError(t, store.EnsurePermission(ctx, ensured))
	assert.Equal(t, int64(9), ensured.ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListOAuthClients(t *testing.T) {
	now := time.Now()
	store, mock := newMockStore(t)
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery(`FROM oauth_clients ORDER BY id LIMIT \$1 OFFSET \$2`).
		WithArgs(10, 10).
		WillReturnRows(sqlmock.NewRows(clientCols).
			AddRow(11, "0b6f0c1e-7c1f-4a43-9d0c-2f3c8a1e9b11", "billing", "{https://billing.example.com/cb}", "{read,write}", true, "hash", "ghs_abcdefgh", now, now))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM oauth_clients`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	items, total, err := store.ListOAuthClients(context.Background(), 10, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(11), total)
	require.Len(t, items, 1)
	assert.Equal(t, []string{"https://billing.example.com/cb"}, items[0].RedirectURIs)
	assert.Equal(t, []string{"read", "write"}, items[0].Scopes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_OAuthClientMutations(t *testing.T) {
	now := time.Now()
	row := func() *sqlmock.Rows {
		return sqlmock.NewRows(clientCols).
			AddRow(4, "0b6f0c1e-7c1f-4a43-9d0c-2f3c8a1e9b11", "billing", "{}", "{}", false, "newhash", "ghs_newprefx", now, now)
	}

	store, mock := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO oauth_clients`).
		WithArgs("0b6f0c1e-7c1f-4a43-9d0c-2f3c8a1e9b11", "billing", sqlmock.AnyArg(), sqlmock.AnyArg(), true, "hash", "ghs_abcdefgh").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(4, now, now))
	mock.ExpectQuery(`UPDATE oauth_clients\s+SET name = \$2`).
		WithArgs(int64(4), "billing", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(row())
	mock.ExpectQuery(`UPDATE oauth_clients SET active = \$2`).
		WithArgs(int64(4), false).
		WillReturnRows(row())
	mock.ExpectQuery(`UPDATE oauth_clients SET secret_hash = \$2`).
		WithArgs(int64(4), "newhash", "ghs_newprefx").
		WillReturnRows(row())
	mock.ExpectQuery(`FROM oauth_clients WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`DELETE FROM oauth_clients WHERE id = \$1`).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	c := &clients.Client{
		ClientID:     "0b6f0c1e-7c1f-4a43-9d0c-2f3c8a1e9b11",
		Name:         "billing",
		Active:       true,
		SecretHash:   "hash",
		SecretPrefix: "ghs_abcdefgh",
	}
	require.NoError(t, store.CreateOAuthClient(ctx, c))
	assert.Equal(t, int64(4), c.ID)

	_, err := store.UpdateOAuthClient(ctx, 4, clients.Spec{Name: "billing"})
	require.NoError(t, err)

	updated, err := store.SetOAuthClientActive(ctx, 4, false)
	require.NoError(t, err)
	assert.False(t, updated.Active)

	rotated, err := store.UpdateOAuthClientSecret(ctx, 4, "newhash", "ghs_newprefx")
	require.NoError(t, err)
	assert.Equal(t, "ghs_newprefx", rotated.SecretPrefix)

	_, err = store.GetOAuthClient(ctx, 5)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.DeleteOAuthClient(ctx, 4))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Users(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT user_id\s+FROM api_tokens`).
		WithArgs("hash").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(5))
	mock.ExpectQuery(`SELECT id FROM users WHERE subject = \$1`).
		WithArgs("unknown").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("alice", "alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectQuery(`INSERT INTO api_tokens`).
		WithArgs(int64(5), "cli", "hash", "gh_abcdefgh", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO user_roles`).
		WithArgs(int64(5), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO user_roles`).
		WithArgs(int64(5), int64(404)).
		WillReturnError(&pq.Error{Code: "23503"})
	mock.ExpectExec(`DELETE FROM user_roles`).
		WithArgs(int64(5), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO user_roles \(user_id, role_id\)\s+SELECT \$1, id FROM roles WHERE name = \$2`).
		WithArgs(int64(5), "admin").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	id, err := store.UserIDForToken(ctx, "hash")
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)

	_, err = store.UserIDForSubject(ctx, "unknown")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	id, err = store.EnsureUser(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)

	_, err = store.CreateAPIToken(ctx, 5, "cli", "hash", "gh_abcdefgh", nil)
	require.NoError(t, err)

	require.NoError(t, store.AssignUserRole(ctx, 5, 1))
	assert.ErrorIs(t, store.AssignUserRole(ctx, 5, 404), storage.ErrConflict)
	assert.ErrorIs(t, store.RevokeUserRole(ctx, 5, 1), storage.ErrNotFound)
	require.NoError(t, store.AssignUserRoleByName(ctx, 5, "admin"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS gatehouse_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM gatehouse_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1).AddRow(2))
	for _, m := range Migrations()[2:] {
		mock.ExpectBegin()
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO gatehouse_migrations`).
			WithArgs(m.Version, m.Description).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	require.NoError(t, Migrate(context.Background(), db, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListingPoolSelection(t *testing.T) {
	now := time.Now()
	primary, primaryMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { primary.Close() })
	replica, replicaMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { replica.Close() })

	store := NewStoreFromManager(NewConnectionManagerFromDB(primary, nil, replica), WithQueryTimeout(time.Second))

	replicaMock.ExpectQuery(`FROM permissions ORDER BY name`).
		WillReturnRows(sqlmock.NewRows(permissionCols).AddRow(1, "roles.read", "roles", "", now))
	primaryMock.ExpectQuery(`FROM permissions ORDER BY name`).
		WillReturnRows(sqlmock.NewRows(permissionCols).
			AddRow(1, "roles.read", "roles", "", now).
			AddRow(2, "users.read", "users", "", now))

	ctx := context.Background()
	lagging, err := store.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Len(t, lagging, 1)

	current, err := store.ListPermissions(storage.WithPrimaryRead(ctx))
	require.NoError(t, err)
	assert.Len(t, current, 2)

	require.NoError(t, replicaMock.ExpectationsWereMet())
	require.NoError(t, primaryMock.ExpectationsWereMet())
}
