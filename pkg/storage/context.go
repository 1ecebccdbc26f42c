package storage

import "context"

type primaryReadKey struct{}

// WithPrimaryRead marks ctx so that stores serve reads from the primary even
// where they would otherwise use a replica. Callers that cache what they read
// set it; a lagging replica would otherwise be cached for the full TTL.
func WithPrimaryRead(ctx context.Context) context.Context {
	return context.WithValue(ctx, primaryReadKey{}, true)
}

// PrimaryReadRequired reports whether ctx was marked by WithPrimaryRead.
func PrimaryReadRequired(ctx context.Context) bool {
	v, _ := ctx.Value(primaryReadKey{}).(bool)
	return v
}
