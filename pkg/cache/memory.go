package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryEntries = 10000

type memoryEntry struct {
	data     []byte
	absolute time.Time
	sliding  time.Duration
	idle     time.Time
}

// MemoryBackend is a bounded in-process LRU with the same absolute and
// sliding expiry rules as RedisBackend, evaluated lazily on access. It does
// not support pattern removal.
type MemoryBackend struct {
	mu      sync.Mutex
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

// NewMemoryBackend creates a backend holding at most size entries.
func NewMemoryBackend(size int) (*MemoryBackend, error) {
	if size <= 0 {
		size = defaultMemoryEntries
	}
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &MemoryBackend{entries: entries, now: time.Now}, nil
}

// Get returns a copy of the entry's bytes and extends its idle deadline.
func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries.Get(key)
	if !ok {
		return nil, ErrMiss
	}

	now := b.now()
	if !now.Before(entry.absolute) || (entry.sliding > 0 && !now.Before(entry.idle)) {
		b.entries.Remove(key)
		return nil, ErrMiss
	}

	if entry.sliding > 0 {
		entry.idle = earliest(now.Add(entry.sliding), entry.absolute)
		b.entries.Add(key, entry)
	}
	return append([]byte(nil), entry.data...), nil
}

// Set stores a copy of value.
func (b *MemoryBackend) Set(ctx context.Context, key string, value []byte, exp Expiration) error {
	if exp.Absolute <= 0 {
		return fmt.Errorf("cache: absolute expiration must be positive")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	entry := memoryEntry{
		data:     append([]byte(nil), value...),
		absolute: now.Add(exp.Absolute),
		sliding:  exp.Sliding,
	}
	if exp.Sliding > 0 {
		entry.idle = earliest(now.Add(exp.Sliding), entry.absolute)
	}
	b.entries.Add(key, entry)
	return nil
}

// Remove deletes keys; absent keys are ignored.
func (b *MemoryBackend) Remove(ctx context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, key := range keys {
		b.entries.Remove(key)
	}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (b *MemoryBackend) Len() int {
	return b.entries.Len()
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
