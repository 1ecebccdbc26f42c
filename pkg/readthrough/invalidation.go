package readthrough

import (
	"context"

	"github.com/platinummonkey/gatehouse/pkg/cache"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

const listSegment = "list"

// Invalidator removes cached projections after store mutations.
type Invalidator struct {
	cache   *cache.Service
	keys    cache.Keys
	bound   Invalidation
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewInvalidator creates an invalidator bound to d's namespace and config.
func NewInvalidator(d Deps) *Invalidator {
	bound := d.Config.Invalidation
	if bound.MaxPage < 0 {
		bound.MaxPage = 0
	}
	return &Invalidator{
		cache:   d.Cache,
		keys:    d.Keys,
		bound:   bound,
		logger:  observability.OrNop(d.Logger).WithField("component", "invalidator"),
		metrics: d.Metrics,
	}
}

// Remove deletes exact keys belonging to entity.
func (inv *Invalidator) Remove(ctx context.Context, entity Entity, keys ...string) {
	if len(keys) == 0 {
		return
	}
	inv.cache.Remove(ctx, keys...)
	inv.metrics.RecordInvalidation(string(entity), "exact", len(keys))
}

// RemoveListings deletes every cached page of entity's paginated listing
// that can be named: the pattern removal runs when the backend supports it,
// and the bounded enumeration always runs.
func (inv *Invalidator) RemoveListings(ctx context.Context, entity Entity) {
	if inv.cache.SupportsPatternRemoval() {
		prefix := inv.keys.Prefix(string(entity), listSegment)
		if inv.cache.RemoveByPattern(ctx, prefix) {
			inv.metrics.RecordInvalidation(string(entity), "pattern", 1)
		} else {
			inv.logger.WithField("prefix", prefix).Warn("pattern invalidation failed, relying on enumeration")
		}
	}

	keys := inv.ListingKeys(entity)
	inv.cache.Remove(ctx, keys...)
	inv.metrics.RecordInvalidation(string(entity), "enumerated", len(keys))
}

// RemoveSeeded drops what a seed run can change outside the orchestrators:
// the upserted permissions and roles, the permission catalog and both role
// listings.
func (inv *Invalidator) RemoveSeeded(ctx context.Context, permissionIDs, roleIDs []int64) {
	perms := make([]string, 0, len(permissionIDs)+1)
	for _, id := range permissionIDs {
		perms = append(perms, inv.keys.Key(string(EntityPermissions), id))
	}
	inv.Remove(ctx, EntityPermissions, append(perms, inv.keys.Key(string(EntityPermissions), "all"))...)

	roles := make([]string, 0, len(roleIDs)+2)
	for _, id := range roleIDs {
		roles = append(roles, inv.keys.Key(string(EntityRoles), id))
	}
	inv.Remove(ctx, EntityRoles, append(roles,
		inv.keys.Key(string(EntityRoles), "all"),
		inv.keys.Key(string(EntityRoles), "all", "with-permissions"),
	)...)
}

// ListingKeys enumerates the listing keys inside the configured bound.
func (inv *Invalidator) ListingKeys(entity Entity) []string {
	keys := make([]string, 0, inv.bound.MaxPage*len(inv.bound.PageSizes))
	for page := 1; page <= inv.bound.MaxPage; page++ {
		for _, size := range inv.bound.PageSizes {
			keys = append(keys, listingKey(inv.keys, entity, page, size))
		}
	}
	return keys
}

func listingKey(keys cache.Keys, entity Entity, page, size int) string {
	return keys.Key(string(entity), listSegment, page, size)
}
