package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/gatehouse/pkg/api"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/cache"
	"github.com/platinummonkey/gatehouse/pkg/config"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/readthrough"
	"github.com/platinummonkey/gatehouse/pkg/storage/postgres"
)

func serve(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tp, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	cm, err := postgres.NewConnectionManager(cfg.Storage.Connection(), logger)
	if err != nil {
		return err
	}
	cm.StartHealthCheckRoutine(ctx, 30*time.Second)

	if cfg.Storage.MigrateOnStart {
		if err := postgres.Migrate(ctx, cm.Primary(), logger); err != nil {
			cm.Close()
			return err
		}
	}

	store := postgres.NewStoreFromManager(cm,
		postgres.WithQueryTimeout(cfg.Storage.QueryTimeout),
		postgres.WithLogger(logger),
		postgres.WithMetrics(metrics),
	)
	backend, redisClient, err := newCacheBackend(ctx, cfg.Cache, logger)
	if err != nil {
		cm.Close()
		return err
	}
	deps := readthrough.Deps{
		Cache:   cache.NewService(backend, cfg.Cache.Service(), logger, metrics),
		Keys:    cache.NewKeys(cfg.Cache.InstanceName),
		Config:  cfg.Cache.ReadThrough(),
		Logger:  logger,
		Metrics: metrics,
	}
	if err := seedCatalog(ctx, cfg, store, readthrough.NewInvalidator(deps)); err != nil {
		cm.Close()
		return err
	}

	authn, err := newAuthenticator(ctx, cfg.Auth, store, logger)
	if err != nil {
		cm.Close()
		return err
	}

	var rateLimit func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled {
		limiter, err := newLimiter(cfg.RateLimit, redisClient)
		if err != nil {
			cm.Close()
			return err
		}
		rateLimit = middleware.NewRateLimitMiddleware(limiter, cfg.RateLimit.Limits(), logger).Handler
	}

	var healthRedis redis.UniversalClient
	if redisClient != nil {
		healthRedis = redisClient
	}
	health := observability.NewHealthChecker(cm, healthRedis, version)

	server := api.NewServer(api.Options{
		Roles:        readthrough.NewRoles(store, deps),
		Permissions:  readthrough.NewPermissions(store, deps),
		Clients:      readthrough.NewOAuthClients(store, deps),
		Users:        store,
		Engine:       rbac.NewEngine(store, store, logger, metrics),
		Authenticate: middleware.NewAuthMiddleware(authn, false, logger).Handler,
		RateLimit:    rateLimit,
		Health:       health,
		Registry:     registry,
		Metrics:      metrics,
		Logger:       logger,
	})

	apiServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthRouter := mux.NewRouter()
	healthRouter.HandleFunc("/health/live", health.Liveness).Methods(http.MethodGet)
	healthRouter.HandleFunc("/health/ready", health.Readiness).Methods(http.MethodGet)
	healthRouter.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
	healthServer := &http.Server{
		Addr:              cfg.Server.HealthAddr(),
		Handler:           healthRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.Register("postgres", func(context.Context) error { return cm.Close() })
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("otel", func(ctx context.Context) error { return observability.ShutdownOTel(ctx, tp, logger) })

	errCh := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, healthServer} {
		go func(srv *http.Server) {
			defer observability.RecoverPanic(logger, "http server "+srv.Addr)
			logger.WithField("addr", srv.Addr).Info("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	waitCtx, stop := context.WithCancel(ctx)
	defer stop()
	failed := make(chan error, 1)
	go func() {
		select {
		case err := <-errCh:
			logger.WithError(err).Error("HTTP server failed")
			failed <- err
			stop()
		case <-waitCtx.Done():
			failed <- nil
		}
	}()

	shutdownErr := shutdown.WaitForSignal(waitCtx)
	stop()
	return errors.Join(<-failed, shutdownErr)
}

func applySeed(ctx context.Context, cfg *config.Config, store rbac.SeedStore) (*rbac.SeedResult, error) {
	seed, err := loadSeed(cfg.SeedFile)
	if err != nil {
		return nil, err
	}
	return rbac.ApplySeed(ctx, store, seed)
}

// seedCatalog applies the seed and drops the cached projections it touched.
// Other instances may have cached them before this one started.
func seedCatalog(ctx context.Context, cfg *config.Config, store rbac.SeedStore, inv *readthrough.Invalidator) error {
	res, err := applySeed(ctx, cfg, store)
	if res != nil {
		inv.RemoveSeeded(ctx, res.PermissionIDs, res.RoleIDs)
	}
	return err
}

func loadSeed(path string) (*rbac.Seed, error) {
	if path == "" {
		return rbac.DefaultSeed()
	}
	return rbac.LoadSeed(path)
}

func newCacheBackend(ctx context.Context, cfg config.CacheConfig, logger *observability.Logger) (cache.Backend, *redis.Client, error) {
	if cfg.Backend == config.CacheBackendMemory {
		logger.WithField("entries", cfg.MemoryEntries).Info("Using in-process cache")
		backend, err := cache.NewMemoryBackend(cfg.MemoryEntries)
		return backend, nil, err
	}

	client, err := cache.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		return nil, nil, err
	}
	logger.WithField("pattern_scan", cfg.PatternScan).Info("Using redis cache")
	return cache.NewRedisBackend(client, cfg.PatternScan), client, nil
}

func newAuthenticator(ctx context.Context, cfg config.AuthConfig, store *postgres.Store, logger *observability.Logger) (auth.Authenticator, error) {
	chain := auth.Chain{auth.NewAPITokenAuthenticator(store)}
	if cfg.OIDCIssuer == "" {
		return chain, nil
	}
	oidcAuth, err := auth.NewOIDCAuthenticator(ctx, cfg.OIDCIssuer, cfg.OIDCClientID, store)
	if err != nil {
		return nil, err
	}
	logger.WithField("issuer", cfg.OIDCIssuer).Info("OIDC authentication enabled")
	return append(chain, oidcAuth), nil
}

func newLimiter(cfg config.RateLimitConfig, client *redis.Client) (middleware.Limiter, error) {
	if client != nil {
		return middleware.NewRedisLimiter(client, cfg.Window, "gatehouse:ratelimit"), nil
	}
	return middleware.NewMemoryLimiter(cfg.Window, 100000)
}
