package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/readthrough"
)

const maxBodyBytes = 1 << 20

// Options carries the collaborators the server routes to.
type Options struct {
	Roles       *readthrough.Roles
	Permissions *readthrough.Permissions
	Clients     *readthrough.OAuthClients
	Users       UserRoleStore
	Engine      *rbac.Engine

	// Authenticate populates the request principal. RateLimit runs after it
	// so limits can key on the user. Either may be nil.
	Authenticate func(http.Handler) http.Handler
	RateLimit    func(http.Handler) http.Handler

	Health   *observability.HealthChecker
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Logger   *observability.Logger
}

// Server is the gatehouse HTTP API.
type Server struct {
	router *mux.Router
	perm   *rbac.PermissionMiddleware
	logger *observability.Logger
}

// RouteRegistrar is implemented by handler groups.
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router, perm *rbac.PermissionMiddleware)
}

// NewServer builds the router. Health and metrics endpoints are public;
// everything under /v1 is authenticated and bound to permissions.
func NewServer(opts Options) *Server {
	logger := observability.OrNop(opts.Logger).WithField("component", "api")
	s := &Server{
		router: mux.NewRouter(),
		perm:   rbac.NewPermissionMiddleware(opts.Engine, logger),
		logger: logger,
	}

	s.router.Use(
		observability.RecoveryMiddleware(logger),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		observability.HTTPMetricsMiddleware(opts.Metrics),
	)

	if opts.Health != nil {
		s.router.HandleFunc("/health/live", opts.Health.Liveness).Methods(http.MethodGet)
		s.router.HandleFunc("/health/ready", opts.Health.Readiness).Methods(http.MethodGet)
	}
	if opts.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(opts.Registry)).Methods(http.MethodGet)
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(httputil.MaxBytesMiddleware(maxBodyBytes), httputil.ContentTypeMiddleware)
	if opts.Authenticate != nil {
		v1.Use(opts.Authenticate)
	}
	if opts.RateLimit != nil {
		v1.Use(opts.RateLimit)
	}

	registrars := []RouteRegistrar{
		NewRoleHandlers(opts.Roles, logger),
		NewPermissionHandlers(opts.Permissions, logger),
		NewClientHandlers(opts.Clients, logger),
		NewUserHandlers(opts.Users, logger),
		NewAuthzHandlers(opts.Engine, logger),
	}
	for _, reg := range registrars {
		reg.RegisterRoutes(v1, s.perm)
	}
	return s
}

// Handler returns the router wrapped in OpenTelemetry instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "gatehouse")
}

// ServeHTTP implements http.Handler without tracing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// guarded binds a handler to the permissions it requires.
func guarded(perm *rbac.PermissionMiddleware, h http.HandlerFunc, permissions ...string) http.Handler {
	return perm.RequireAll(permissions...)(h)
}
