package rbac

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AllPermissions in a role's permission list expands to every permission in
// the seed catalog.
const AllPermissions = "*"

//go:embed default_seed.yaml
var defaultSeed []byte

// Seed is a declarative catalog of permissions, roles and bootstrap users.
type Seed struct {
	Permissions []SeedPermission `yaml:"permissions"`
	Roles       []SeedRole       `yaml:"roles"`
	Users       []SeedUser       `yaml:"users"`
}

// SeedPermission describes one permission.
type SeedPermission struct {
	Name        string `yaml:"name"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
}

// SeedRole describes a role and the permission names it holds.
type SeedRole struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// SeedUser binds an external subject to roles at bootstrap.
type SeedUser struct {
	Subject string   `yaml:"subject"`
	Email   string   `yaml:"email"`
	Roles   []string `yaml:"roles"`
}

// SeedStore is the write surface needed to apply a seed. Every call is an
// idempotent upsert.
type SeedStore interface {
	EnsurePermission(ctx context.Context, perm *Permission) error
	EnsureRole(ctx context.Context, name, description string) (int64, error)
	GrantPermissions(ctx context.Context, roleID int64, permissions []string) error
	EnsureUser(ctx context.Context, subject, email string) (int64, error)
	AssignUserRoleByName(ctx context.Context, userID int64, roleName string) error
}

// DefaultSeed returns the built-in catalog.
func DefaultSeed() (*Seed, error) {
	return ParseSeed(defaultSeed)
}

// LoadSeed reads a seed catalog from a YAML file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and validates a YAML seed catalog. Names are normalized
// the same way requirements are.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	if err := seed.normalize(); err != nil {
		return nil, err
	}
	return &seed, nil
}

func (s *Seed) normalize() error {
	known := make(map[string]struct{}, len(s.Permissions))
	for i := range s.Permissions {
		p := &s.Permissions[i]
		p.Name = normalizeName(p.Name)
		if p.Name == "" {
			return fmt.Errorf("seed permission %d: name is required", i)
		}
		if _, dup := known[p.Name]; dup {
			return fmt.Errorf("seed permission %q declared twice", p.Name)
		}
		known[p.Name] = struct{}{}
	}

	roles := make(map[string]struct{}, len(s.Roles))
	for i := range s.Roles {
		r := &s.Roles[i]
		r.Name = normalizeName(r.Name)
		if r.Name == "" {
			return fmt.Errorf("seed role %d: name is required", i)
		}
		roles[r.Name] = struct{}{}
		r.Permissions = AllOf(r.Permissions...).Names()
		for _, name := range r.Permissions {
			if name == AllPermissions {
				continue
			}
			if _, ok := known[name]; !ok {
				return fmt.Errorf("seed role %q: unknown permission %q", r.Name, name)
			}
		}
	}

	for i := range s.Users {
		u := &s.Users[i]
		if u.Subject == "" {
			return fmt.Errorf("seed user %d: subject is required", i)
		}
		u.Roles = AllOf(u.Roles...).Names()
		for _, name := range u.Roles {
			if _, ok := roles[name]; !ok {
				return fmt.Errorf("seed user %q: unknown role %q", u.Subject, name)
			}
		}
	}
	return nil
}

// PermissionNames returns every permission name in the catalog.
func (s *Seed) PermissionNames() []string {
	names := make([]string, 0, len(s.Permissions))
	for _, p := range s.Permissions {
		names = append(names, p.Name)
	}
	return names
}

// grantsFor expands the wildcard for a role.
func (s *Seed) grantsFor(r SeedRole) []string {
	for _, name := range r.Permissions {
		if name == AllPermissions {
			return s.PermissionNames()
		}
	}
	return r.Permissions
}

// SeedResult lists the rows ApplySeed upserted, so callers can drop cached
// projections of them.
type SeedResult struct {
	PermissionIDs []int64
	RoleIDs       []int64
}

// ApplySeed upserts the catalog. Grants are only ever added, so running it
// against a live database never revokes access granted through the API.
func ApplySeed(ctx context.Context, store SeedStore, seed *Seed) (*SeedResult, error) {
	res := &SeedResult{}
	for i := range seed.Permissions {
		p := seed.Permissions[i]
		perm := &Permission{
			Name:        p.Name,
			Category:    p.Category,
			Description: p.Description,
		}
		if err := store.EnsurePermission(ctx, perm); err != nil {
			return res, fmt.Errorf("seed permission %q: %w", p.Name, err)
		}
		res.PermissionIDs = append(res.PermissionIDs, perm.ID)
	}

	for _, r := range seed.Roles {
		id, err := store.EnsureRole(ctx, r.Name, r.Description)
		if err != nil {
			return res, fmt.Errorf("seed role %q: %w", r.Name, err)
		}
		res.RoleIDs = append(res.RoleIDs, id)
		if grants := seed.grantsFor(r); len(grants) > 0 {
			if err := store.GrantPermissions(ctx, id, grants); err != nil {
				return res, fmt.Errorf("seed grants for role %q: %w", r.Name, err)
			}
		}
	}

	for _, u := range seed.Users {
		userID, err := store.EnsureUser(ctx, u.Subject, u.Email)
		if err != nil {
			return res, fmt.Errorf("seed user %q: %w", u.Subject, err)
		}
		for _, role := range u.Roles {
			if err := store.AssignUserRoleByName(ctx, userID, role); err != nil {
				return res, fmt.Errorf("seed membership %q -> %q: %w", u.Subject, role, err)
			}
		}
	}
	return res, nil
}
