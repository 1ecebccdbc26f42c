package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

// RateLimitConfig defines a fixed-window limit.
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
}

// DefaultRateLimitConfig returns default rate limit settings
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 600,
		WindowDuration:    time.Minute,
	}
}

// Usage is the state of a key after counting one request.
type Usage struct {
	Count int64
	Reset time.Duration
}

// Limiter counts requests per key within the current window.
type Limiter interface {
	Hit(ctx context.Context, key string) (Usage, error)
}

// MemoryLimiter is a process-local fixed-window counter over a bounded set
// of keys.
type MemoryLimiter struct {
	window  time.Duration
	mu      sync.Mutex
	windows *lru.Cache[string, *window]
	now     func() time.Time
}

type window struct {
	start time.Time
	count int64
}

// NewMemoryLimiter creates a limiter tracking at most maxKeys keys.
func NewMemoryLimiter(windowDuration time.Duration, maxKeys int) (*MemoryLimiter, error) {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	windows, err := lru.New[string, *window](maxKeys)
	if err != nil {
		return nil, fmt.Errorf("create limiter: %w", err)
	}
	return &MemoryLimiter{window: windowDuration, windows: windows, now: time.Now}, nil
}

// Hit implements Limiter.
func (l *MemoryLimiter) Hit(ctx context.Context, key string) (Usage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows.Get(key)
	if !ok || now.Sub(w.start) >= l.window {
		w = &window{start: now}
		l.windows.Add(key, w)
	}
	w.count++
	return Usage{Count: w.count, Reset: w.start.Add(l.window).Sub(now)}, nil
}

// RedisLimiter shares fixed-window counters across instances.
type RedisLimiter struct {
	client redis.UniversalClient
	window time.Duration
	prefix string
}

// NewRedisLimiter creates a Redis-backed limiter. Keys are stored under prefix.
func NewRedisLimiter(client redis.UniversalClient, windowDuration time.Duration, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{client: client, window: windowDuration, prefix: prefix}
}

// Hit implements Limiter. A counter without an expiry starts a new window.
func (l *RedisLimiter) Hit(ctx context.Context, key string) (Usage, error) {
	redisKey := l.prefix + ":" + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		ttl = pipe.PTTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		return Usage{}, fmt.Errorf("redis rate limit: %w", err)
	}

	reset := ttl.Val()
	if reset < 0 {
		if err := l.client.PExpire(ctx, redisKey, l.window).Err(); err != nil {
			return Usage{}, fmt.Errorf("redis rate limit expiry: %w", err)
		}
		reset = l.window
	}
	return Usage{Count: incr.Val(), Reset: reset}, nil
}

// RateLimitMiddleware limits requests per principal, or per client IP for
// unauthenticated requests. Limiter failures let the request through.
type RateLimitMiddleware struct {
	limiter Limiter
	config  RateLimitConfig
	logger  *observability.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(limiter Limiter, config RateLimitConfig, logger *observability.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		config:  config,
		logger:  observability.OrNop(logger),
	}
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ip:" + clientIP(r)
		if p := rbac.PrincipalFromContext(r.Context()); p != nil {
			key = "user:" + strconv.FormatInt(p.UserID, 10)
		}

		usage, err := m.limiter.Hit(r.Context(), key)
		if err != nil {
			m.logger.WithError(err).Warn("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		limit := int64(m.config.RequestsPerWindow)
		remaining := limit - usage.Count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(usage.Reset).Unix(), 10))

		if usage.Count > limit {
			seconds := int64(usage.Reset.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
			httputil.WriteTooManyRequests(w, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
