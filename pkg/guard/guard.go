// Package guard enforces authorization at route boundaries. Checks are
// pure functions over the principal; the Guard type wraps them as mux
// middleware that records every denial in the audit trail and metrics.
package guard

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lexvault/lexvault/pkg/audit"
	"github.com/lexvault/lexvault/pkg/auth"
	"github.com/lexvault/lexvault/pkg/httputil"
	"github.com/lexvault/lexvault/pkg/observability"
)

// Denial reason codes. These are part of the API contract: clients and
// audit queries branch on them, so they never change.
const (
	ReasonUserNotFound           = "USER_NOT_FOUND"
	ReasonInsufficientRole       = "INSUFFICIENT_ROLE"
	ReasonInsufficientPermission = "INSUFFICIENT_PERMISSION"
	ReasonTenantAccessDenied     = "TENANT_ACCESS_DENIED"
)

// DenialError describes a failed authorization check.
type DenialError struct {
	// Check names the check that failed: authenticated, role, permission,
	// or tenant_scope.
	Check string

	// Reason is the stable denial code.
	Reason string

	Message string
}

func (e *DenialError) Error() string { return e.Message }

// Unauthenticated reports whether the denial maps to 401 rather than 403.
func (e *DenialError) Unauthenticated() bool {
	return e.Reason == ReasonUserNotFound
}

// RequireAuthenticated checks that a principal is present.
func RequireAuthenticated(p *auth.Principal) *DenialError {
	if p == nil || p.UserID == "" {
		return &DenialError{
			Check:   "authenticated",
			Reason:  ReasonUserNotFound,
			Message: "authentication required",
		}
	}
	return nil
}

// RequireRole checks that the principal holds one of the given roles.
func RequireRole(p *auth.Principal, roles ...auth.Role) *DenialError {
	if d := RequireAuthenticated(p); d != nil {
		return d
	}
	for _, role := range roles {
		if p.Role == role {
			return nil
		}
	}
	return &DenialError{
		Check:   "role",
		Reason:  ReasonInsufficientRole,
		Message: "role not permitted",
	}
}

// RequirePermission checks the role's permission grant. The table is
// consulted fresh on every call, so a role change takes effect on the
// next request.
func RequirePermission(p *auth.Principal, perm auth.Permission) *DenialError {
	if d := RequireAuthenticated(p); d != nil {
		return d
	}
	if !p.HasPermission(perm) {
		return &DenialError{
			Check:   "permission",
			Reason:  ReasonInsufficientPermission,
			Message: "permission not granted",
		}
	}
	return nil
}

// RequireTenantScope checks that the principal may act within the firm
// identified by slug. An active ghost session narrows a platform operator
// to the impersonated firm; otherwise platform roles pass any tenant and
// firm-bound roles must match their own firm exactly.
func RequireTenantScope(p *auth.Principal, firmSlug string) *DenialError {
	if d := RequireAuthenticated(p); d != nil {
		return d
	}

	denied := &DenialError{
		Check:   "tenant_scope",
		Reason:  ReasonTenantAccessDenied,
		Message: "tenant access denied",
	}

	if p.GhostFirmSlug != "" {
		if p.GhostFirmSlug == firmSlug {
			return nil
		}
		return denied
	}
	if p.PlatformLevel() {
		return nil
	}
	if p.FirmSlug != "" && p.FirmSlug == firmSlug {
		return nil
	}
	return denied
}

// Guard wraps the checks as middleware with audit and metrics on every
// denial.
type Guard struct {
	audit   audit.Logger
	metrics *observability.Metrics
}

// New creates a Guard. auditLogger and metrics may be nil in tests.
func New(auditLogger audit.Logger, metrics *observability.Metrics) *Guard {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Guard{audit: auditLogger, metrics: metrics}
}

// Authenticated requires a principal on the request.
func (g *Guard) Authenticated() mux.MiddlewareFunc {
	return g.middleware(func(p *auth.Principal, _ *http.Request) *DenialError {
		return RequireAuthenticated(p)
	})
}

// Role requires one of the given roles.
func (g *Guard) Role(roles ...auth.Role) mux.MiddlewareFunc {
	return g.middleware(func(p *auth.Principal, _ *http.Request) *DenialError {
		return RequireRole(p, roles...)
	})
}

// Permission requires the given permission.
func (g *Guard) Permission(perm auth.Permission) mux.MiddlewareFunc {
	return g.middleware(func(p *auth.Principal, _ *http.Request) *DenialError {
		return RequirePermission(p, perm)
	})
}

// TenantScope requires access to the firm named by the route variable.
func (g *Guard) TenantScope(routeVar string) mux.MiddlewareFunc {
	return g.middleware(func(p *auth.Principal, r *http.Request) *DenialError {
		slug := mux.Vars(r)[routeVar]
		if slug == "" {
			return &DenialError{
				Check:   "tenant_scope",
				Reason:  ReasonTenantAccessDenied,
				Message: "tenant access denied",
			}
		}
		return RequireTenantScope(p, slug)
	})
}

func (g *Guard) middleware(check func(*auth.Principal, *http.Request) *DenialError) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := auth.PrincipalFromContext(r.Context())
			if d := check(p, r); d != nil {
				g.deny(w, r, p, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) deny(w http.ResponseWriter, r *http.Request, p *auth.Principal, d *DenialError) {
	eventType := audit.EventTypeAuthzAccessDenied
	if d.Reason == ReasonTenantAccessDenied {
		eventType = audit.EventTypeAuthzTenantDenied
	}

	event := audit.NewEvent(eventType, audit.EventStatusDenied, r)
	event.Reason = d.Reason
	if p != nil {
		event.UserID = p.UserID
		event.Email = p.Email
		event.FirmID = p.FirmID
	}
	if err := g.audit.Log(r.Context(), event); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("audit denial failed")
	}

	if g.metrics != nil {
		g.metrics.AccessDeniedTotal.WithLabelValues(d.Check, d.Reason).Inc()
	}

	if d.Unauthenticated() {
		httputil.WriteUnauthorized(w)
		return
	}
	httputil.WriteForbidden(w, d.Reason, d.Message)
}
