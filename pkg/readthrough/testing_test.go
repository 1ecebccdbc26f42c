package readthrough

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/cache"
	"github.com/platinummonkey/gatehouse/pkg/clients"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

// fakeStore is an in-memory store that counts reads so tests can tell a
// cache hit from a store round trip.
type fakeStore struct {
	mu          sync.Mutex
	roles       map[int64]rbac.Role
	permissions map[int64]rbac.Permission
	grants      map[int64]map[int64]struct{}
	clients     map[int64]clients.Client
	nextID      int64
	reads       map[string]int
	primary     map[string]int
	failWrites  error
	failReads   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		roles:       map[int64]rbac.Role{},
		permissions: map[int64]rbac.Permission{},
		grants:      map[int64]map[int64]struct{}{},
		clients:     map[int64]clients.Client{},
		nextID:      100,
		reads:       map[string]int{},
		primary:     map[string]int{},
	}
}

func (f *fakeStore) readCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[op]
}

// primaryReadCount counts reads of op that required the primary.
func (f *fakeStore) primaryReadCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.primary[op]
}

func (f *fakeStore) read(ctx context.Context, op string) error {
	f.reads[op]++
	if storage.PrimaryReadRequired(ctx) {
		f.primary[op]++
	}
	return f.failReads
}

func (f *fakeStore) addPermission(id int64, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permissions[id] = rbac.Permission{ID: id, Name: name}
}

func (f *fakeStore) addRole(id int64, name string, perms ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[id] = rbac.Role{ID: id, Name: name}
	f.grants[id] = map[int64]struct{}{}
	for _, p := range perms {
		for pid, perm := range f.permissions {
			if perm.Name == p {
				f.grants[id][pid] = struct{}{}
			}
		}
	}
}

func (f *fakeStore) addClient(id int64, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[id] = clients.Client{ID: id, ClientID: fmt.Sprintf("client-%d", id), Name: name, Active: true, SecretHash: "hash-" + name}
}

func (f *fakeStore) projectRole(id int64) rbac.Role {
	r := f.roles[id]
	r.Permissions = []rbac.Permission{}
	for pid := range f.grants[id] {
		r.Permissions = append(r.Permissions, f.permissions[pid])
	}
	sort.Slice(r.Permissions, func(i, j int) bool { return r.Permissions[i].Name < r.Permissions[j].Name })
	return r
}

func (f *fakeStore) ListRoles(ctx context.Context, withPermissions bool) ([]rbac.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.read(ctx, "ListRoles"); err != nil {
		return nil, err
	}
	out := []rbac.Role{}
	for id := range f.roles {
		r := f.projectRole(id)
		if !withPermissions {
			r.Permissions = nil
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) GetRole(ctx context.Context, id int64) (*rbac.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.read(ctx, "GetRole"); err != nil {
		return nil, err
	}
	if _, ok := f.roles[id]; !ok {
		return nil, fmt.Errorf("get role %d: %w", id, storage.ErrNotFound)
	}
	r := f.projectRole(id)
	return &r, nil
}

func (f *fakeStore) setGrants(id int64, perms []string) error {
	grants := map[int64]struct{}{}
	for _, name := range perms {
		found := false
		for pid, p := range f.permissions {
			if p.Name == name {
				grants[pid] = struct{}{}
				found = true
			}
		}
		if !found {
			return fmt.Errorf("unknown permission %q: %w", name, storage.ErrConflict)
		}
	}
	f.grants[id] = grants
	return nil
}

func (f *fakeStore) CreateRole(ctx context.Context, role *rbac.Role, perms []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return f.failWrites
	}
	f.nextID++
	role.ID = f.nextID
	f.roles[role.ID] = rbac.Role{ID: role.ID, Name: role.Name, Description: role.Description}
	if err := f.setGrants(role.ID, perms); err != nil {
		return err
	}
	*role = f.projectRole(role.ID)
	return nil
}

func (f *fakeStore) UpdateRole(ctx context.Context, role *rbac.Role, perms []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return f.failWrites
	}
	if _, ok := f.roles[role.ID]; !ok {
		return fmt.Errorf("update role %d: %w", role.ID, storage.ErrNotFound)
	}
	f.roles[role.ID] = rbac.Role{ID: role.ID, Name: role.Name, Description: role.Description}
	if perms != nil {
		if err := f.setGrants(role.ID, perms); err != nil {
			return err
		}
	}
	*role = f.projectRole(role.ID)
	return nil
}

func (f *fakeStore) DeleteRole(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return f.failWrites
	}
	if _, ok := f.roles[id]; !ok {
		return fmt.Errorf("delete role %d: %w", id, storage.ErrNotFound)
	}
	delete(f.roles, id)
	delete(f.grants, id)
	return nil
}

func (f *fakeStore) SetRolePermissions(ctx context.Context, id int64, perms []string) (*rbac.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return nil, f.failWrites
	}
	if _, ok := f.roles[id]; !ok {
		return nil, fmt.Errorf("set permissions of role %d: %w", id, storage.ErrNotFound)
	}
	if err := f.setGrants(id, perms); err != nil {
		return nil, err
	}
	r := f.projectRole(id)
	return &r, nil
}

func (f *fakeStore) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.read(ctx, "ListPermissions"); err != nil {
		return nil, err
	}
	out := []rbac.Permission{}
	for _, p := range f.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) GetPermission(ctx context.Context, id int64) (*rbac.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.read(ctx, "GetPermission"); err != nil {
		return nil, err
	}
	p, ok := f.permissions[id]
	if !ok {
		return nil, fmt.Errorf("get permission %d: %w", id, storage.ErrNotFound)
	}
	return &p, nil
}

func (f *fakeStore) CreatePermission(ctx context.Context, perm *rbac.Permission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return f.failWrites
	}
	for _, p := range f.permissions {
		if p.Name == perm.Name {
			return fmt.Errorf("create permission %s: %w", perm.Name, storage.ErrConflict)
		}
	}
	f.nextID++
	perm.ID = f.nextID
	f.permissions[perm.ID] = *perm
	return nil
}

func (f *fakeStore) DeletePermission(ctx context.Context, id int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return nil, f.failWrites
	}
	if _, ok := f.permissions[id]; !ok {
		return nil, fmt.Errorf("delete permission %d: %w", id, storage.ErrNotFound)
	}
	delete(f.permissions, id)
	holders := []int64{}
	for rid, grants := range f.grants {
		if _, ok := grants[id]; ok {
			holders = append(holders, rid)
			delete(grants, id)
		}
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i] < holders[j] })
	return holders, nil
}

func (f *fakeStore) ListOAuthClients(ctx context.Context, offset, limit int) ([]clients.Client, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.read(ctx, "ListOAuthClients"); err != nil {
		return nil, 0, err
	}
	all := make([]clients.Client, 0, len(f.clients))
	for _, c := range f.clients {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := int64(len(all))
	if offset >= len(all) {
		return []clients.Client{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (f *fakeStore) GetOAuthClient(ctx context.Context, id int64) (*clients.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.read(ctx, "GetOAuthClient"); err != nil {
		return nil, err
	}
	c, ok := f.clients[id]
	if !ok {
		return nil, fmt.Errorf("get oauth client %d: %w", id, storage.ErrNotFound)
	}
	return &c, nil
}

func (f *fakeStore) CreateOAuthClient(ctx context.Context, c *clients.Client) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return f.failWrites
	}
	f.nextID++
	c.ID = f.nextID
	f.clients[c.ID] = *c
	return nil
}

func (f *fakeStore) mutateClient(id int64, fn func(*clients.Client)) (*clients.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return nil, f.failWrites
	}
	c, ok := f.clients[id]
	if !ok {
		return nil, fmt.Errorf("oauth client %d: %w", id, storage.ErrNotFound)
	}
	fn(&c)
	f.clients[id] = c
	return &c, nil
}

func (f *fakeStore) UpdateOAuthClient(ctx context.Context, id int64, spec clients.Spec) (*clients.Client, error) {
	spec = spec.Normalize()
	return f.mutateClient(id, func(c *clients.Client) {
		c.Name = spec.Name
		c.RedirectURIs = spec.RedirectURIs
		c.Scopes = spec.Scopes
	})
}

func (f *fakeStore) SetOAuthClientActive(ctx context.Context, id int64, active bool) (*clients.Client, error) {
	return f.mutateClient(id, func(c *clients.Client) { c.Active = active })
}

func (f *fakeStore) UpdateOAuthClientSecret(ctx context.Context, id int64, hash, prefix string) (*clients.Client, error) {
	return f.mutateClient(id, func(c *clients.Client) {
		c.SecretHash = hash
		c.SecretPrefix = prefix
	})
}

func (f *fakeStore) DeleteOAuthClient(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return f.failWrites
	}
	if _, ok := f.clients[id]; !ok {
		return fmt.Errorf("delete oauth client %d: %w", id, storage.ErrNotFound)
	}
	delete(f.clients, id)
	return nil
}

const testNamespace = "test"

func newMemoryDeps(t *testing.T) (Deps, *cache.MemoryBackend) {
	t.Helper()
	backend, err := cache.NewMemoryBackend(1024)
	require.NoError(t, err)
	return newDeps(backend), backend
}

func newRedisDeps(t *testing.T, patternScan bool) (Deps, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := cache.NewRedisClient(context.Background(), cache.RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return newDeps(cache.NewRedisBackend(client, patternScan)), mr
}

func newDeps(backend cache.Backend) Deps {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return Deps{
		Cache:   cache.NewService(backend, cache.DefaultConfig(), nil, metrics),
		Keys:    cache.NewKeys(testNamespace),
		Config:  DefaultConfig(),
		Metrics: metrics,
	}
}

// cached reports whether key is present in the cache service.
func cached[T any](t *testing.T, d Deps, key string) bool {
	t.Helper()
	_, ok := cache.Get[T](context.Background(), d.Cache, key)
	return ok
}
