// Package cache provides the derived, non-authoritative cache used by the
// read-through layer: a Backend abstraction with redis and in-memory
// implementations, and a Service that absorbs every backend failure.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss is returned by a Backend when the key is absent or expired.
	ErrMiss = errors.New("cache: miss")

	// ErrUnavailable wraps backend connectivity failures.
	ErrUnavailable = errors.New("cache: unavailable")
)

// Expiration bounds the lifetime of an entry. Absolute is measured from the
// write; Sliding, when positive, expires an entry that is not read within the
// window but never extends it past the absolute deadline.
type Expiration struct {
	Absolute time.Duration
	Sliding  time.Duration
}

// Backend is a byte-oriented key/value store with expiry.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, exp Expiration) error
	Remove(ctx context.Context, keys ...string) error
}

// PatternRemover is implemented by backends that can remove every key under
// a prefix. SupportsPatternRemoval may still report false when the capability
// is disabled by configuration.
type PatternRemover interface {
	SupportsPatternRemoval() bool
	RemoveByPattern(ctx context.Context, prefix string) error
}
