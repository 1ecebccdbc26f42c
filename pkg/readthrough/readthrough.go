package readthrough

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/gatehouse/pkg/cache"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

// Deps are the collaborators shared by every orchestrator.
type Deps struct {
	Cache   *cache.Service
	Keys    cache.Keys
	Config  Config
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

type base struct {
	cache  *cache.Service
	keys   cache.Keys
	cfg    Config
	logger *observability.Logger
	inv    *Invalidator
	tracer trace.Tracer
}

func newBase(d Deps, component string) base {
	logger := observability.OrNop(d.Logger).WithField("component", component)
	return base{
		cache:  d.Cache,
		keys:   d.Keys,
		cfg:    d.Config,
		logger: logger,
		inv:    NewInvalidator(d),
		tracer: observability.Tracer("gatehouse/readthrough"),
	}
}

// readThrough serves key from the cache, or loads, caches and returns it.
// Loads that fill the cache are marked with storage.WithPrimaryRead.
// Load errors, including not-found, are returned without touching the cache.
func readThrough[T any](ctx context.Context, b base, entity Entity, op, key string, load func(context.Context) (T, error)) (T, error) {
	ctx, span := b.tracer.Start(ctx, "readthrough."+op, trace.WithAttributes(
		attribute.String("cache.key", key),
	))
	defer span.End()

	if v, ok := cache.Get[T](ctx, b.cache, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return v, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	// A value that will be cached is read from the primary. With the breaker
	// open nothing is cached, so the load may use a replica.
	fill := b.cache.Accepting()
	loadCtx := ctx
	if fill {
		loadCtx = storage.WithPrimaryRead(ctx)
	}
	span.SetAttributes(attribute.Bool("cache.fill", fill))

	v, err := load(loadCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store read failed")
		var zero T
		return zero, err
	}
	if fill {
		cache.Set(ctx, b.cache, key, v, b.cfg.TTLFor(entity))
	}
	return v, nil
}
