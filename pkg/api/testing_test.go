package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/cache"
	"github.com/platinummonkey/gatehouse/pkg/clients"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/readthrough"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

type roleRecord struct {
	role  rbac.Role
	perms map[string]bool
}

// memStore is a relational in-memory stand-in for postgres.Store.
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	perms     map[int64]rbac.Permission
	roles     map[int64]*roleRecord
	members   map[int64]map[int64]bool
	tokens    map[string]int64
	clients   map[int64]clients.Client
	failReads error
}

func newMemStore() *memStore {
	return &memStore{
		nextID:  1000,
		perms:   map[int64]rbac.Permission{},
		roles:   map[int64]*roleRecord{},
		members: map[int64]map[int64]bool{},
		tokens:  map[string]int64{},
		clients: map[int64]clients.Client{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) permissionID(name string) (int64, bool) {
	for id, p := range m.perms {
		if p.Name == name {
			return id, true
		}
	}
	return 0, false
}

func (m *memStore) project(id int64) rbac.Role {
	rec := m.roles[id]
	r := rec.role
	r.Permissions = []rbac.Permission{}
	for name := range rec.perms {
		pid, _ := m.permissionID(name)
		r.Permissions = append(r.Permissions, m.perms[pid])
	}
	sort.Slice(r.Permissions, func(i, j int) bool { return r.Permissions[i].Name < r.Permissions[j].Name })
	return r
}

func (m *memStore) grantSet(names []string) (map[string]bool, error) {
	set := map[string]bool{}
	for _, n := range names {
		if _, ok := m.permissionID(n); !ok {
			return nil, fmt.Errorf("grant %s: %w", n, storage.ErrConflict)
		}
		set[n] = true
	}
	return set, nil
}

func (m *memStore) HasGrant(ctx context.Context, roleNames []string, permission string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.roles {
		for _, n := range roleNames {
			if rec.role.Name == n && rec.perms[permission] {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *memStore) RoleNames(ctx context.Context, userID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roleIDs, ok := m.members[userID]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", userID, storage.ErrNotFound)
	}
	names := []string{}
	for id := range roleIDs {
		if rec, ok := m.roles[id]; ok {
			names = append(names, rec.role.Name)
		}
	}
	return names, nil
}

func (m *memStore) UserIDForToken(ctx context.Context, hash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.tokens[hash]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return id, nil
}

func (m *memStore) AssignUserRole(ctx context.Context, userID, roleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[userID]; !ok {
		return fmt.Errorf("assign role: %w", storage.ErrConflict)
	}
	if _, ok := m.roles[roleID]; !ok {
		return fmt.Errorf("assign role: %w", storage.ErrConflict)
	}
	m.members[userID][roleID] = true
	return nil
}

func (m *memStore) RevokeUserRole(ctx context.Context, userID, roleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.members[userID][roleID] {
		return fmt.Errorf("revoke role: %w", storage.ErrNotFound)
	}
	delete(m.members[userID], roleID)
	return nil
}

func (m *memStore) ListRoles(ctx context.Context, withPermissions bool) ([]rbac.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads != nil {
		return nil, m.failReads
	}
	out := []rbac.Role{}
	for id := range m.roles {
		r := m.project(id)
		if !withPermissions {
			r.Permissions = nil
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) GetRole(ctx context.Context, id int64) (*rbac.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads != nil {
		return nil, m.failReads
	}
	if _, ok := m.roles[id]; !ok {
		return nil, fmt.Errorf("get role %d: %w", id, storage.ErrNotFound)
	}
	r := m.project(id)
	return &r, nil
}

func (m *memStore) CreateRole(ctx context.Context, role *rbac.Role, perms []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.roles {
		if rec.role.Name == role.Name {
			return fmt.Errorf("create role: %w", storage.ErrConflict)
		}
	}
	set, err := m.grantSet(perms)
	if err != nil {
		return err
	}
	role.ID = m.id()
	m.roles[role.ID] = &roleRecord{role: rbac.Role{ID: role.ID, Name: role.Name, Description: role.Description}, perms: set}
	*role = m.project(role.ID)
	return nil
}

func (m *memStore) UpdateRole(ctx context.Context, role *rbac.Role, perms []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.roles[role.ID]
	if !ok {
		return fmt.Errorf("update role %d: %w", role.ID, storage.ErrNotFound)
	}
	if perms != nil {
		set, err := m.grantSet(perms)
		if err != nil {
			return err
		}
		rec.perms = set
	}
	rec.role.Name = role.Name
	rec.role.Description = role.Description
	*role = m.project(role.ID)
	return nil
}

func (m *memStore) DeleteRole(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return fmt.Errorf("delete role %d: %w", id, storage.ErrNotFound)
	}
	delete(m.roles, id)
	for _, roles := range m.members {
		delete(roles, id)
	}
	return nil
}

func (m *memStore) SetRolePermissions(ctx context.Context, id int64, perms []string) (*rbac.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.roles[id]
	if !ok {
		return nil, fmt.Errorf("set permissions of role %d: %w", id, storage.ErrNotFound)
	}
	set, err := m.grantSet(perms)
	if err != nil {
		return nil, err
	}
	rec.perms = set
	r := m.project(id)
	return &r, nil
}

func (m *memStore) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []rbac.Permission{}
	for _, p := range m.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) GetPermission(ctx context.Context, id int64) (*rbac.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.perms[id]
	if !ok {
		return nil, fmt.Errorf("get permission %d: %w", id, storage.ErrNotFound)
	}
	return &p, nil
}

func (m *memStore) CreatePermission(ctx context.Context, perm *rbac.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.permissionID(perm.Name); ok {
		return fmt.Errorf("create permission %s: %w", perm.Name, storage.ErrConflict)
	}
	perm.ID = m.id()
	m.perms[perm.ID] = *perm
	return nil
}

func (m *memStore) DeletePermission(ctx context.Context, id int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.perms[id]
	if !ok {
		return nil, fmt.Errorf("delete permission %d: %w", id, storage.ErrNotFound)
	}
	delete(m.perms, id)
	holders := []int64{}
	for rid, rec := range m.roles {
		if rec.perms[p.Name] {
			holders = append(holders, rid)
			delete(rec.perms, p.Name)
		}
	}
	return holders, nil
}

func (m *memStore) ListOAuthClients(ctx context.Context, offset, limit int) ([]clients.Client, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := []clients.Client{}
	for _, c := range m.clients {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := int64(len(all))
	if offset >= len(all) {
		return []clients.Client{}, total, nil
	}
	return all[offset:min(offset+limit, len(all))], total, nil
}

func (m *memStore) GetOAuthClient(ctx context.Context, id int64) (*clients.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, fmt.Errorf("get oauth client %d: %w", id, storage.ErrNotFound)
	}
	return &c, nil
}

func (m *memStore) CreateOAuthClient(ctx context.Context, c *clients.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.id()
	m.clients[c.ID] = *c
	return nil
}

func (m *memStore) updateClient(id int64, fn func(*clients.Client)) (*clients.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, fmt.Errorf("oauth client %d: %w", id, storage.ErrNotFound)
	}
	fn(&c)
	m.clients[id] = c
	return &c, nil
}

func (m *memStore) UpdateOAuthClient(ctx context.Context, id int64, spec clients.Spec) (*clients.Client, error) {
	spec = spec.Normalize()
	return m.updateClient(id, func(c *clients.Client) {
		c.Name, c.RedirectURIs, c.Scopes = spec.Name, spec.RedirectURIs, spec.Scopes
	})
}

func (m *memStore) SetOAuthClientActive(ctx context.Context, id int64, active bool) (*clients.Client, error) {
	return m.updateClient(id, func(c *clients.Client) { c.Active = active })
}

func (m *memStore) UpdateOAuthClientSecret(ctx context.Context, id int64, hash, prefix string) (*clients.Client, error) {
	return m.updateClient(id, func(c *clients.Client) { c.SecretHash, c.SecretPrefix = hash, prefix })
}

func (m *memStore) DeleteOAuthClient(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[id]; !ok {
		return fmt.Errorf("delete oauth client %d: %w", id, storage.ErrNotFound)
	}
	delete(m.clients, id)
	return nil
}

// fixture is a running API with an admin, an auditor and a user without roles.
type fixture struct {
	store    *memStore
	server   *httptest.Server
	admin    string
	auditor  string
	nobody   string
	metrics  *observability.Metrics
	registry *prometheus.Registry
}

const (
	adminUserID   = 1
	auditorUserID = 2
	nobodyUserID  = 3
	adminRoleID   = 10
	auditorRoleID = 11
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newMemStore()
	seed, err := rbac.DefaultSeed()
	require.NoError(t, err)
	for i, name := range seed.PermissionNames() {
		id := int64(i + 1)
		store.perms[id] = rbac.Permission{ID: id, Name: name}
	}
	all := map[string]bool{}
	for _, name := range seed.PermissionNames() {
		all[name] = true
	}
	store.roles[adminRoleID] = &roleRecord{role: rbac.Role{ID: adminRoleID, Name: "admin"}, perms: all}
	store.roles[auditorRoleID] = &roleRecord{role: rbac.Role{ID: auditorRoleID, Name: "auditor"}, perms: map[string]bool{
		"roles.read": true, "permissions.read": true, "oauth-clients.read": true, "users.read": true,
	}}
	store.members[adminUserID] = map[int64]bool{adminRoleID: true}
	store.members[auditorUserID] = map[int64]bool{auditorRoleID: true}
	store.members[nobodyUserID] = map[int64]bool{}

	f := &fixture{store: store, registry: prometheus.NewRegistry()}
	f.metrics = observability.NewMetrics(f.registry)
	f.admin = f.issueToken(t, adminUserID)
	f.auditor = f.issueToken(t, auditorUserID)
	f.nobody = f.issueToken(t, nobodyUserID)

	backend, err := cache.NewMemoryBackend(1024)
	require.NoError(t, err)
	deps := readthrough.Deps{
		Cache:   cache.NewService(backend, cache.DefaultConfig(), nil, f.metrics),
		Keys:    cache.NewKeys("api-test"),
		Config:  readthrough.DefaultConfig(),
		Metrics: f.metrics,
	}

	limiter, err := middleware.NewMemoryLimiter(middleware.DefaultRateLimitConfig().WindowDuration, 100)
	require.NoError(t, err)

	srv := NewServer(Options{
		Roles:        readthrough.NewRoles(store, deps),
		Permissions:  readthrough.NewPermissions(store, deps),
		Clients:      readthrough.NewOAuthClients(store, deps),
		Users:        store,
		Engine:       rbac.NewEngine(store, store, nil, f.metrics),
		Authenticate: middleware.NewAuthMiddleware(auth.NewAPITokenAuthenticator(store), false, nil).Handler,
		RateLimit:    middleware.NewRateLimitMiddleware(limiter, middleware.DefaultRateLimitConfig(), nil).Handler,
		Health:       observability.NewHealthChecker(nil, nil, "test"),
		Registry:     f.registry,
		Metrics:      f.metrics,
	})
	f.server = httptest.NewServer(srv.Handler())
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) issueToken(t *testing.T, userID int64) string {
	t.Helper()
	token, hash, _, err := auth.NewTokenGenerator(auth.APITokenPrefix).Generate()
	require.NoError(t, err)
	f.store.tokens[hash] = userID
	return token
}

func (f *fixture) do(t *testing.T, token, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}
