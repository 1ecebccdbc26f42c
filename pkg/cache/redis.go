package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	fieldData     = "data"
	fieldAbsolute = "absexp"
	fieldSliding  = "sldexp"

	scanCount = 100
)

// RedisConfig configures the redis client used by RedisBackend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRedisClient parses the URL, applies timeouts and verifies connectivity.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	opts.DialTimeout = durationOr(cfg.DialTimeout, 5*time.Second)
	opts.ReadTimeout = durationOr(cfg.ReadTimeout, 3*time.Second)
	opts.WriteTimeout = durationOr(cfg.WriteTimeout, 3*time.Second)
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// RedisBackend stores each entry as a hash {data, absexp, sldexp}. The key
// TTL is the shorter of the sliding window and the time left before the
// absolute deadline; a hit re-applies that rule.
type RedisBackend struct {
	client      redis.UniversalClient
	patternScan bool
	now         func() time.Time
}

// NewRedisBackend wraps a client. patternScan enables SCAN based prefix
// removal; leave it off where SCAN is disabled.
func NewRedisBackend(client redis.UniversalClient, patternScan bool) *RedisBackend {
	return &RedisBackend{
		client:      client,
		patternScan: patternScan,
		now:         time.Now,
	}
}

// Get returns the entry's bytes and refreshes its sliding window.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	vals, err := b.client.HMGet(ctx, key, fieldData, fieldAbsolute, fieldSliding).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: hmget %s: %w", ErrUnavailable, key, err)
	}
	if len(vals) != 3 || vals[0] == nil {
		return nil, ErrMiss
	}

	data, ok := vals[0].(string)
	if !ok {
		return nil, ErrMiss
	}
	absolute := parseInt(vals[1])
	sliding := time.Duration(parseInt(vals[2]))

	remaining := time.Unix(0, absolute).Sub(b.now())
	if remaining <= 0 {
		_ = b.client.Del(ctx, key).Err()
		return nil, ErrMiss
	}

	if sliding > 0 {
		if err := b.client.PExpire(ctx, key, minDuration(sliding, remaining)).Err(); err != nil {
			return nil, fmt.Errorf("%w: pexpire %s: %w", ErrUnavailable, key, err)
		}
	}
	return []byte(data), nil
}

// Set writes the entry and its TTL atomically.
func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, exp Expiration) error {
	if exp.Absolute <= 0 {
		return fmt.Errorf("cache: absolute expiration must be positive")
	}
	deadline := b.now().Add(exp.Absolute)
	ttl := exp.Absolute
	if exp.Sliding > 0 {
		ttl = minDuration(exp.Sliding, exp.Absolute)
	}

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldData, value,
			fieldAbsolute, deadline.UnixNano(),
			fieldSliding, int64(exp.Sliding),
		)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrUnavailable, key, err)
	}
	return nil
}

// Remove deletes keys; absent keys are ignored.
func (b *RedisBackend) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: del: %w", ErrUnavailable, err)
	}
	return nil
}

// SupportsPatternRemoval reports whether SCAN based removal is enabled.
func (b *RedisBackend) SupportsPatternRemoval() bool {
	return b.patternScan
}

// RemoveByPattern deletes every key starting with prefix.
func (b *RedisBackend) RemoveByPattern(ctx context.Context, prefix string) error {
	if !b.patternScan {
		return fmt.Errorf("cache: pattern removal disabled")
	}

	var keys []string
	iter := b.client.Scan(ctx, 0, escapeGlob(prefix)+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: scan %s: %w", ErrUnavailable, prefix, err)
	}

	// Delete after the scan completes so removals never shift the cursor.
	for start := 0; start < len(keys); start += scanCount {
		end := min(start+scanCount, len(keys))
		if err := b.Remove(ctx, keys[start:end]...); err != nil {
			return err
		}
	}
	return nil
}

func escapeGlob(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func parseInt(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
