package rbac

import (
	"context"
	"fmt"
	"sync"

	"github.com/platinummonkey/gatehouse/pkg/storage"
)

var errUserMissing = fmt.Errorf("user: %w", storage.ErrNotFound)

// fakeStore is an in-memory GrantStore and RoleResolver.
type fakeStore struct {
	mu          sync.Mutex
	memberships map[int64][]string
	grants      map[string]map[string]bool
	rolesErr    error
	grantErr    error
	grantCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		memberships: map[int64][]string{},
		grants:      map[string]map[string]bool{},
	}
}

func (f *fakeStore) grant(role string, permissions ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grants[role] == nil {
		f.grants[role] = map[string]bool{}
	}
	for _, p := range permissions {
		f.grants[role][p] = true
	}
}

func (f *fakeStore) revoke(role, permission string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.grants[role], permission)
}

func (f *fakeStore) assign(userID int64, roles ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memberships[userID] = append(f.memberships[userID], roles...)
}

func (f *fakeStore) RoleNames(ctx context.Context, userID int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rolesErr != nil {
		return nil, f.rolesErr
	}
	roles, ok := f.memberships[userID]
	if !ok {
		return nil, errUserMissing
	}
	return append([]string{}, roles...), nil
}

func (f *fakeStore) HasGrant(ctx context.Context, roleNames []string, permission string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grantCalls++
	if f.grantErr != nil {
		return false, f.grantErr
	}
	for _, r := range roleNames {
		if f.grants[r][permission] {
			return true, nil
		}
	}
	return false, nil
}
