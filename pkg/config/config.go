package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/platinummonkey/gatehouse/pkg/cache"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/readthrough"
	"github.com/platinummonkey/gatehouse/pkg/storage/postgres"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "GATEHOUSE"

// Cache backends.
const (
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `envconfig:"SERVER"`
	Storage       StorageConfig       `envconfig:"STORAGE"`
	Cache         CacheConfig         `envconfig:"CACHE"`
	Auth          AuthConfig          `envconfig:"AUTH"`
	RateLimit     RateLimitConfig     `envconfig:"RATE_LIMIT"`
	Observability ObservabilityConfig `envconfig:"OBSERVABILITY"`

	// SeedFile overrides the embedded permission catalog.
	SeedFile string `envconfig:"SEED_FILE"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `envconfig:"HEALTH_PORT" default:"9090"`
}

// StorageConfig holds the postgres connection settings.
type StorageConfig struct {
	PostgresURL         string        `envconfig:"POSTGRES_URL"`
	PostgresReplicaURLs string        `envconfig:"POSTGRES_REPLICA_URLS"`
	MaxConns            int           `envconfig:"POSTGRES_MAX_CONNS" default:"20"`
	MinConns            int           `envconfig:"POSTGRES_MIN_CONNS" default:"5"`
	ConnectTimeout      time.Duration `envconfig:"POSTGRES_TIMEOUT" default:"5s"`
	QueryTimeout        time.Duration `envconfig:"QUERY_TIMEOUT" default:"5s"`
	MigrateOnStart      bool          `envconfig:"MIGRATE_ON_START" default:"true"`
}

// CacheConfig holds cache backend, expiry and invalidation settings.
type CacheConfig struct {
	Backend          string        `envconfig:"BACKEND" default:"redis"`
	InstanceName     string        `envconfig:"INSTANCE_NAME" default:"gatehouse"`
	RedisURL         string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	RedisPoolSize    int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	MemoryEntries    int           `envconfig:"MEMORY_ENTRIES" default:"10000"`
	DefaultTTL       time.Duration `envconfig:"DEFAULT_TTL" default:"10m"`
	SlidingTTL       time.Duration `envconfig:"SLIDING_TTL" default:"2m"`
	RolesTTL         time.Duration `envconfig:"ROLES_TTL" default:"10m"`
	PermissionsTTL   time.Duration `envconfig:"PERMISSIONS_TTL" default:"30m"`
	OAuthClientsTTL  time.Duration `envconfig:"OAUTH_CLIENTS_TTL" default:"5m"`
	OperationTimeout time.Duration `envconfig:"OPERATION_TIMEOUT" default:"250ms"`

	// PatternScan enables SCAN based listing invalidation on redis.
	PatternScan           bool  `envconfig:"PATTERN_SCAN" default:"false"`
	InvalidationMaxPage   int   `envconfig:"INVALIDATION_MAX_PAGE" default:"10"`
	InvalidationPageSizes []int `envconfig:"INVALIDATION_PAGE_SIZES" default:"10,20,30,40,50"`

	BreakerFailures    uint32        `envconfig:"BREAKER_FAILURES" default:"5"`
	BreakerOpenTimeout time.Duration `envconfig:"BREAKER_OPEN_TIMEOUT" default:"30s"`
}

// AuthConfig configures bearer authentication. OIDC is enabled when an
// issuer is set; API tokens are always accepted.
type AuthConfig struct {
	OIDCIssuer   string `envconfig:"OIDC_ISSUER"`
	OIDCClientID string `envconfig:"OIDC_CLIENT_ID"`
}

// RateLimitConfig configures the per-principal request limit.
type RateLimitConfig struct {
	Enabled  bool          `envconfig:"ENABLED" default:"true"`
	Requests int           `envconfig:"REQUESTS" default:"600"`
	Window   time.Duration `envconfig:"WINDOW" default:"1m"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	OTelEnabled        bool    `envconfig:"OTEL_ENABLED" default:"false"`
	OTelEndpoint       string  `envconfig:"OTEL_ENDPOINT" default:"localhost:4317"`
	OTelServiceName    string  `envconfig:"OTEL_SERVICE_NAME" default:"gatehouse"`
	OTelServiceVersion string  `envconfig:"OTEL_SERVICE_VERSION" default:"1.0.0"`
	OTelInsecure       bool    `envconfig:"OTEL_INSECURE" default:"true"`
	OTelSampleRatio    float64 `envconfig:"OTEL_SAMPLE_RATIO" default:"1"`
}

// LoadConfig loads configuration from GATEHOUSE_* environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}

	switch c.Cache.Backend {
	case CacheBackendRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis cache backend")
		}
	case CacheBackendMemory:
		if c.Cache.MemoryEntries <= 0 {
			return fmt.Errorf("memory cache entries must be positive")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be redis or memory)", c.Cache.Backend)
	}
	if c.Cache.InstanceName == "" {
		return fmt.Errorf("cache instance name is required")
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache default TTL must be positive")
	}
	if c.Cache.SlidingTTL < 0 {
		return fmt.Errorf("cache sliding TTL must not be negative")
	}
	if c.Cache.InvalidationMaxPage < 1 {
		return fmt.Errorf("cache invalidation max page must be at least 1")
	}
	for _, size := range c.Cache.InvalidationPageSizes {
		if size < 1 || size > readthrough.MaxPageSize {
			return fmt.Errorf("cache invalidation page size %d out of range 1-%d", size, readthrough.MaxPageSize)
		}
	}

	if (c.Auth.OIDCIssuer == "") != (c.Auth.OIDCClientID == "") {
		return fmt.Errorf("OIDC issuer and client ID must be set together")
	}

	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate limit requests and window must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// Addr returns the API listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// HealthAddr returns the health/metrics listen address.
func (s ServerConfig) HealthAddr() string {
	return s.Host + ":" + s.HealthPort
}

// Connection converts storage settings for postgres.NewConnectionManager.
func (s StorageConfig) Connection() postgres.ConnectionConfig {
	return postgres.ConnectionConfig{
		PrimaryURL:  s.PostgresURL,
		ReplicaURLs: postgres.ParseReplicaURLs(s.PostgresReplicaURLs),
		MaxConns:    s.MaxConns,
		MinConns:    s.MinConns,
		Timeout:     s.ConnectTimeout,
		MaxLifetime: 30 * time.Minute,
		MaxIdleTime: 5 * time.Minute,
	}
}

// Service converts cache settings for cache.NewService.
func (c CacheConfig) Service() cache.Config {
	return cache.Config{
		DefaultTTL:         c.DefaultTTL,
		SlidingTTL:         c.SlidingTTL,
		OperationTimeout:   c.OperationTimeout,
		BreakerFailures:    c.BreakerFailures,
		BreakerOpenTimeout: c.BreakerOpenTimeout,
	}
}

// Redis converts cache settings for cache.NewRedisClient.
func (c CacheConfig) Redis() cache.RedisConfig {
	return cache.RedisConfig{
		URL:      c.RedisURL,
		PoolSize: c.RedisPoolSize,
	}
}

// ReadThrough converts cache settings for the read-through orchestrators.
func (c CacheConfig) ReadThrough() readthrough.Config {
	return readthrough.Config{
		TTL: map[readthrough.Entity]time.Duration{
			readthrough.EntityRoles:        c.RolesTTL,
			readthrough.EntityPermissions:  c.PermissionsTTL,
			readthrough.EntityOAuthClients: c.OAuthClientsTTL,
		},
		Invalidation: readthrough.Invalidation{
			MaxPage:   c.InvalidationMaxPage,
			PageSizes: c.InvalidationPageSizes,
		},
	}
}

// Limits converts rate limit settings for the middleware.
func (r RateLimitConfig) Limits() middleware.RateLimitConfig {
	return middleware.RateLimitConfig{
		RequestsPerWindow: r.Requests,
		WindowDuration:    r.Window,
	}
}

// Level parses the configured log level.
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel converts tracing settings for observability.InitOTel.
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}
