package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Config controls expiry defaults, per-call timeouts and the circuit breaker.
type Config struct {
	DefaultTTL       time.Duration
	SlidingTTL       time.Duration
	OperationTimeout time.Duration

	// BreakerFailures consecutive backend failures open the breaker for
	// BreakerOpenTimeout, during which reads miss and fills are dropped.
	// Removals always reach the backend.
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration
}

// DefaultConfig returns the service defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:         10 * time.Minute,
		SlidingTTL:         2 * time.Minute,
		OperationTimeout:   250 * time.Millisecond,
		BreakerFailures:    5,
		BreakerOpenTimeout: 30 * time.Second,
	}
}

// Service fronts a Backend. It never returns an error: misses, backend
// failures, an open breaker and undecodable entries all read as a miss and
// writes that fail are dropped, so callers always fall back to the store.
type Service struct {
	backend Backend
	breaker *gobreaker.CircuitBreaker[[]byte]
	cfg     Config
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewService wraps backend with a circuit breaker, logging and metrics.
func NewService(backend Backend, cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Service {
	defaults := DefaultConfig()
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaults.DefaultTTL
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaults.BreakerFailures
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = defaults.BreakerOpenTimeout
	}
	logger = observability.OrNop(logger).WithField("component", "cache")

	s := &Service{
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
	s.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "cache",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrMiss)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(map[string]interface{}{
				"from": from.String(),
				"to":   to.String(),
			}).Warn("cache circuit breaker state changed")
		},
	})
	return s
}

// DefaultTTL returns the TTL applied when a caller passes ttl <= 0.
func (s *Service) DefaultTTL() time.Duration {
	return s.cfg.DefaultTTL
}

// Accepting reports whether fills can currently reach the backend.
func (s *Service) Accepting() bool {
	return s.breaker.State() != gobreaker.StateOpen
}

// BreakerState exposes the breaker state for diagnostics.
func (s *Service) BreakerState() gobreaker.State {
	return s.breaker.State()
}

func (s *Service) do(ctx context.Context, op string, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	data, err := s.breaker.Execute(func() ([]byte, error) {
		return fn(ctx)
	})
	if err != nil && !errors.Is(err, ErrMiss) {
		s.metrics.RecordCacheError(op)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			s.logger.WithField("operation", op).Debug("cache call skipped, breaker open")
		} else {
			s.logger.WithError(err).WithField("operation", op).Warn("cache call failed")
		}
	}
	return data, err
}

// direct calls the backend outside the breaker. Used for removals: a skipped
// invalidation would let a stale entry outlive the write that replaced it.
func (s *Service) direct(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	err := fn(ctx)
	if err != nil {
		s.metrics.RecordCacheError(op)
		s.logger.WithError(err).WithField("operation", op).Warn("cache call failed")
	}
	return err
}

func (s *Service) getRaw(ctx context.Context, key string) ([]byte, bool) {
	data, err := s.do(ctx, "get", func(ctx context.Context) ([]byte, error) {
		return s.backend.Get(ctx, key)
	})
	entity := entityOf(key)
	if err != nil {
		s.metrics.RecordCacheMiss(entity)
		return nil, false
	}
	s.metrics.RecordCacheHit(entity)
	return data, true
}

func (s *Service) setRaw(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	exp := Expiration{Absolute: ttl, Sliding: s.cfg.SlidingTTL}
	_, _ = s.do(ctx, "set", func(ctx context.Context) ([]byte, error) {
		return nil, s.backend.Set(ctx, key, value, exp)
	})
}

// Get decodes the entry under key into T. A corrupt entry is removed.
func Get[T any](ctx context.Context, s *Service, key string) (T, bool) {
	var value T
	data, ok := s.getRaw(ctx, key)
	if !ok {
		return value, false
	}
	if err := json.Unmarshal(data, &value); err != nil {
		s.metrics.RecordCacheError("decode")
		s.logger.WithError(err).WithField("key", key).Warn("removing undecodable cache entry")
		s.Remove(ctx, key)
		var zero T
		return zero, false
	}
	return value, true
}

// Set encodes value and stores it for ttl, or the default TTL when ttl <= 0.
func Set[T any](ctx context.Context, s *Service, key string, value T, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		s.metrics.RecordCacheError("encode")
		s.logger.WithError(err).WithField("key", key).Warn("cache value not encodable")
		return
	}
	s.setRaw(ctx, key, data, ttl)
}

// Remove deletes keys. It is idempotent, never fails the caller and is not
// short-circuited by an open breaker.
func (s *Service) Remove(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	_ = s.direct(ctx, "remove", func(ctx context.Context) error {
		return s.backend.Remove(ctx, keys...)
	})
}

// SupportsPatternRemoval reports whether RemoveByPattern can succeed.
func (s *Service) SupportsPatternRemoval() bool {
	pr, ok := s.backend.(PatternRemover)
	return ok && pr.SupportsPatternRemoval()
}

// RemoveByPattern removes every key under prefix. It returns false when the
// backend lacks the capability or the removal failed.
func (s *Service) RemoveByPattern(ctx context.Context, prefix string) bool {
	pr, ok := s.backend.(PatternRemover)
	if !ok || !pr.SupportsPatternRemoval() {
		return false
	}
	err := s.direct(ctx, "remove_pattern", func(ctx context.Context) error {
		return pr.RemoveByPattern(ctx, prefix)
	})
	return err == nil
}
