// Package readthrough keeps cached projections of roles, permissions and
// OAuth clients consistent with the store.
//
// Reads compute a deterministic key, return a cache hit when there is one
// and otherwise load from the store, cache the projection with the entity's
// TTL and return it. Store errors, including not-found, are never cached.
//
// Writes mutate the store first and only then invalidate: the entity's id
// key, its "all" listings, and for paginated OAuth client listings every
// page/size combination inside Config.Invalidation. Pages outside that bound
// keep their stale value until TTL expiry unless the cache backend supports
// pattern removal.
//
// A reader that loaded from the store before a concurrent write may still
// fill the cache after that write's invalidation. The stale entry then lives
// until the next invalidation or its TTL; this window is accepted.
//
// The cache never fails a caller. With the cache unavailable every read goes
// to the store.
package readthrough
