package readthrough

import "time"

// Entity names a cached entity type. It is also the key segment after the
// instance namespace.
type Entity string

const (
	EntityRoles        Entity = "roles"
	EntityPermissions  Entity = "permissions"
	EntityOAuthClients Entity = "oauth-clients"
)

// Page size bounds for paginated listings.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Invalidation bounds the page/size combinations removed after a write to a
// paginated entity. Listings outside the bound stay cached until their TTL
// elapses unless the backend supports pattern removal.
type Invalidation struct {
	MaxPage   int
	PageSizes []int
}

// Config holds per-entity TTLs and the invalidation bound.
type Config struct {
	// TTL per entity; a missing or zero entry uses the cache default.
	TTL          map[Entity]time.Duration
	Invalidation Invalidation
}

// DefaultConfig returns the defaults: roles 10m, permissions 30m, OAuth
// clients 5m, and pages 1-10 in sizes 10 through 50.
func DefaultConfig() Config {
	return Config{
		TTL: map[Entity]time.Duration{
			EntityRoles:        10 * time.Minute,
			EntityPermissions:  30 * time.Minute,
			EntityOAuthClients: 5 * time.Minute,
		},
		Invalidation: Invalidation{
			MaxPage:   10,
			PageSizes: []int{10, 20, 30, 40, 50},
		},
	}
}

// TTLFor returns the configured TTL for entity, or 0 for the cache default.
func (c Config) TTLFor(entity Entity) time.Duration {
	return c.TTL[entity]
}

// NormalizePage clamps listing parameters: page < 1 becomes 1, size < 1
// becomes DefaultPageSize and size > MaxPageSize becomes MaxPageSize.
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}
