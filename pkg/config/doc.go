// Package config loads gatehouse configuration from GATEHOUSE_* environment
// variables with envconfig and validates it.
//
// Server settings:
//
//	GATEHOUSE_SERVER_PORT="8080"
//	GATEHOUSE_SERVER_HEALTH_PORT="9090"
//	GATEHOUSE_SERVER_READ_TIMEOUT="15s"
//
// Storage settings:
//
//	GATEHOUSE_STORAGE_POSTGRES_URL="postgres://localhost/gatehouse"
//	GATEHOUSE_STORAGE_POSTGRES_REPLICA_URLS="postgres://replica1/gatehouse,postgres://replica2/gatehouse"
//	GATEHOUSE_STORAGE_QUERY_TIMEOUT="5s"
//
// Cache settings:
//
//	GATEHOUSE_CACHE_BACKEND="redis"  # redis, memory
//	GATEHOUSE_CACHE_INSTANCE_NAME="gatehouse"
//	GATEHOUSE_CACHE_REDIS_URL="redis://localhost:6379/0"
//	GATEHOUSE_CACHE_ROLES_TTL="10m"
//	GATEHOUSE_CACHE_PERMISSIONS_TTL="30m"
//	GATEHOUSE_CACHE_OAUTH_CLIENTS_TTL="5m"
//	GATEHOUSE_CACHE_PATTERN_SCAN="false"
//	GATEHOUSE_CACHE_INVALIDATION_MAX_PAGE="10"
//	GATEHOUSE_CACHE_INVALIDATION_PAGE_SIZES="10,20,30,40,50"
//
// Auth and rate limiting:
//
//	GATEHOUSE_AUTH_OIDC_ISSUER="https://accounts.example.com"
//	GATEHOUSE_AUTH_OIDC_CLIENT_ID="gatehouse"
//	GATEHOUSE_RATE_LIMIT_REQUESTS="600"
//	GATEHOUSE_RATE_LIMIT_WINDOW="1m"
//
// Observability settings:
//
//	GATEHOUSE_OBSERVABILITY_LOG_LEVEL="info"  # debug, info, warn, error
//	GATEHOUSE_OBSERVABILITY_OTEL_ENABLED="true"
//	GATEHOUSE_OBSERVABILITY_OTEL_ENDPOINT="otel-collector:4317"
package config
