package guard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexvault/lexvault/pkg/audit"
	"github.com/lexvault/lexvault/pkg/auth"
)

func attorney() *auth.Principal {
	return &auth.Principal{
		UserID: "user-1", Email: "ada@acme.law", Role: auth.RoleAttorney,
		FirmID: "firm-1", FirmSlug: "acme",
	}
}

func platformAdmin() *auth.Principal {
	return &auth.Principal{UserID: "admin-1", Email: "ops@lexvault.io", Role: auth.RolePlatformAdmin}
}

func TestRequireAuthenticated(t *testing.T) {
	assert.Nil(t, RequireAuthenticated(attorney()))

	d := RequireAuthenticated(nil)
	require.NotNil(t, d)
	assert.Equal(t, ReasonUserNotFound, d.Reason)
	assert.True(t, d.Unauthenticated())
}

func TestRequireRole(t *testing.T) {
	assert.Nil(t, RequireRole(attorney(), auth.RoleAttorney, auth.RoleFirmAdmin))

	d := RequireRole(attorney(), auth.RoleFirmAdmin)
	require.NotNil(t, d)
	assert.Equal(t, ReasonInsufficientRole, d.Reason)
	assert.False(t, d.Unauthenticated())

	d = RequireRole(nil, auth.RoleFirmAdmin)
	require.NotNil(t, d)
	assert.Equal(t, ReasonUserNotFound, d.Reason)
}

func TestRequirePermission(t *testing.T) {
	assert.Nil(t, RequirePermission(attorney(), auth.PermCaseWrite))

	d := RequirePermission(attorney(), auth.PermGhostMode)
	require.NotNil(t, d)
	assert.Equal(t, ReasonInsufficientPermission, d.Reason)
}

func TestRequireTenantScope(t *testing.T) {
	t.Run("own firm", func(t *testing.T) {
		assert.Nil(t, RequireTenantScope(attorney(), "acme"))
	})

	t.Run("other firm", func(t *testing.T) {
		d := RequireTenantScope(attorney(), "other")
		require.NotNil(t, d)
		assert.Equal(t, ReasonTenantAccessDenied, d.Reason)
	})

	t.Run("platform role passes any tenant", func(t *testing.T) {
		assert.Nil(t, RequireTenantScope(platformAdmin(), "acme"))
		assert.Nil(t, RequireTenantScope(platformAdmin(), "other"))
	})

	t.Run("ghost scope narrows platform role", func(t *testing.T) {
		p := platformAdmin()
		p.GhostFirmSlug = "acme"
		assert.Nil(t, RequireTenantScope(p, "acme"))

		d := RequireTenantScope(p, "other")
		require.NotNil(t, d)
		assert.Equal(t, ReasonTenantAccessDenied, d.Reason)
	})

	t.Run("empty firm slug never matches", func(t *testing.T) {
		p := attorney()
		p.FirmSlug = ""
		require.NotNil(t, RequireTenantScope(p, ""))
	})
}

func serveWithGuard(t *testing.T, mw mux.MiddlewareFunc, p *auth.Principal, path, pattern string) *httptest.ResponseRecorder {
	t.Helper()
	router := mux.NewRouter()
	router.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	router.Use(mw)

	r := httptest.NewRequest("GET", path, nil)
	if p != nil {
		r = r.WithContext(auth.ContextWithPrincipal(r.Context(), p))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	return rec
}

func TestMiddlewareAllows(t *testing.T) {
	g := New(nil, nil)
	rec := serveWithGuard(t, g.Permission(auth.PermCaseRead), attorney(), "/api/cases", "/api/cases")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareAnonymousGets401(t *testing.T) {
	g := New(nil, nil)
	rec := serveWithGuard(t, g.Authenticated(), nil, "/api/cases", "/api/cases")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareDenialGets403AndAudit(t *testing.T) {
	sink := audit.NewMemoryLogger()
	g := New(sink, nil)

	rec := serveWithGuard(t, g.Permission(auth.PermGhostMode), attorney(), "/api/cases", "/api/cases")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), ReasonInsufficientPermission)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeAuthzAccessDenied, events[0].EventType)
	assert.Equal(t, ReasonInsufficientPermission, events[0].Reason)
	assert.Equal(t, "user-1", events[0].UserID)
}

func TestMiddlewareTenantScopeFromRoute(t *testing.T) {
	sink := audit.NewMemoryLogger()
	g := New(sink, nil)

	rec := serveWithGuard(t, g.TenantScope("firmSlug"), attorney(), "/api/firms/acme/cases", "/api/firms/{firmSlug}/cases")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serveWithGuard(t, g.TenantScope("firmSlug"), attorney(), "/api/firms/other/cases", "/api/firms/{firmSlug}/cases")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeAuthzTenantDenied, events[0].EventType)
}
