package rbac

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

// Decision reasons, used as the metric label and in explanations.
const (
	ReasonGranted    = "granted"
	ReasonNoGrant    = "no_grant"
	ReasonNoRoles    = "no_roles"
	ReasonUnresolved = "unresolved_principal"
	ReasonEmpty      = "empty_requirement"
	ReasonStoreError = "store_error"
)

// Explanation describes how a decision was reached.
type Explanation struct {
	Permission string   `json:"permission"`
	Decision   Decision `json:"-"`
	Allowed    bool     `json:"allowed"`
	Reason     string   `json:"reason"`
	Roles      []string `json:"roles"`
}

// Engine decides whether a principal holds a permission. Role membership and
// grants are read from the store on every call; nothing is cached.
type Engine struct {
	grants  GrantStore
	roles   RoleResolver
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewEngine creates a decision engine.
func NewEngine(grants GrantStore, roles RoleResolver, logger *observability.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		grants:  grants,
		roles:   roles,
		logger:  observability.OrNop(logger).WithField("component", "rbac"),
		metrics: metrics,
		tracer:  observability.Tracer("gatehouse/rbac"),
	}
}

// Decide returns Allow iff some role held by the principal is granted the
// required permission. Every failure path denies. A nil principal or a user
// that no longer exists yields ErrUnresolvedPrincipal; store failures are
// returned wrapped alongside Deny.
func (e *Engine) Decide(ctx context.Context, principal *Principal, req Requirement) (Decision, error) {
	ex, err := e.Explain(ctx, principal, req)
	return ex.Decision, err
}

// DecideAll allows only when every requirement allows. It stops at the first
// deny or error. An empty list allows.
func (e *Engine) DecideAll(ctx context.Context, principal *Principal, reqs ...Requirement) (Decision, error) {
	for _, req := range dedupe(reqs) {
		d, err := e.Decide(ctx, principal, req)
		if err != nil || d != Allow {
			return Deny, err
		}
	}
	return Allow, nil
}

// Explain runs a decision and reports the roles consulted and the reason.
func (e *Engine) Explain(ctx context.Context, principal *Principal, req Requirement) (ex Explanation, err error) {
	ctx, span := e.tracer.Start(ctx, "rbac.Decide", trace.WithAttributes(
		attribute.String("rbac.permission", req.Name()),
	))
	defer func() {
		ex.Allowed = ex.Decision.Allowed()
		span.SetAttributes(
			attribute.String("rbac.decision", ex.Decision.String()),
			attribute.String("rbac.reason", ex.Reason),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, ex.Reason)
		}
		span.End()
		e.metrics.RecordAuthzDecision(ex.Decision.String(), ex.Reason)
	}()

	ex = Explanation{Permission: req.Name(), Decision: Deny, Roles: []string{}}

	if principal == nil {
		ex.Reason = ReasonUnresolved
		return ex, ErrUnresolvedPrincipal
	}
	span.SetAttributes(attribute.String("rbac.user_id", strconv.FormatInt(principal.UserID, 10)))

	if req.Name() == "" {
		ex.Reason = ReasonEmpty
		return ex, nil
	}

	roles, err := e.roles.RoleNames(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ex.Reason = ReasonUnresolved
			return ex, fmt.Errorf("%w: user %d: %w", ErrUnresolvedPrincipal, principal.UserID, err)
		}
		ex.Reason = ReasonStoreError
		e.logger.WithError(err).WithField("user_id", principal.UserID).Error("resolving roles failed")
		return ex, fmt.Errorf("resolve roles for user %d: %w", principal.UserID, err)
	}
	if len(roles) == 0 {
		ex.Reason = ReasonNoRoles
		return ex, nil
	}
	ex.Roles = roles

	granted, err := e.grants.HasGrant(ctx, roles, req.Name())
	if err != nil {
		ex.Reason = ReasonStoreError
		e.logger.WithError(err).WithFields(map[string]interface{}{
			"user_id":    principal.UserID,
			"permission": req.Name(),
		}).Error("grant lookup failed")
		return ex, fmt.Errorf("check grant %q: %w", req.Name(), err)
	}
	if !granted {
		ex.Reason = ReasonNoGrant
		return ex, nil
	}

	ex.Decision = Allow
	ex.Reason = ReasonGranted
	return ex, nil
}
