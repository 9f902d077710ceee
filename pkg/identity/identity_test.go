package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexvault/lexvault/pkg/auth"
	"github.com/lexvault/lexvault/pkg/directory"
	"github.com/lexvault/lexvault/pkg/firms"
	"github.com/lexvault/lexvault/pkg/session"
	"github.com/lexvault/lexvault/pkg/strategy"
	"github.com/lexvault/lexvault/pkg/token"
)

type fakeUsers struct {
	users map[string]*directory.User
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*directory.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, directory.ErrNotFound
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*directory.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, directory.ErrNotFound
}

func (f *fakeUsers) RecordLogin(context.Context, string, time.Time) error { return nil }

func (f *fakeUsers) BumpTokenVersion(_ context.Context, id string) (int64, error) {
	u, ok := f.users[id]
	if !ok {
		return 0, directory.ErrNotFound
	}
	u.TokenVersion++
	return u.TokenVersion, nil
}

type fakeFirmStore struct {
	firms map[string]*firms.Firm
}

func (f *fakeFirmStore) FindByID(_ context.Context, id string) (*firms.Firm, error) {
	if fm, ok := f.firms[id]; ok {
		return fm, nil
	}
	return nil, firms.ErrNotFound
}

func (f *fakeFirmStore) FindBySlug(_ context.Context, slug string) (*firms.Firm, error) {
	for _, fm := range f.firms {
		if fm.Slug == slug {
			return fm, nil
		}
	}
	return nil, firms.ErrNotFound
}

type fakeGhosts struct {
	slugs map[string]string
}

func (f *fakeGhosts) ActiveFirmSlug(_ context.Context, userID string) (string, error) {
	return f.slugs[userID], nil
}

func testExtractor(t *testing.T) (*Extractor, *token.Service, session.Store, *fakeUsers, *fakeGhosts) {
	t.Helper()

	users := &fakeUsers{users: map[string]*directory.User{
		"user-1": {
			ID: "user-1", Email: "ada@acme.law", Role: auth.RoleAttorney,
			FirmID: "firm-1", Status: directory.StatusActive,
		},
		"admin-1": {
			ID: "admin-1", Email: "ops@lexvault.io", Role: auth.RolePlatformAdmin,
			Status: directory.StatusActive,
		},
		"gone-1": {
			ID: "gone-1", Email: "gone@acme.law", Role: auth.RoleStaff,
			FirmID: "firm-1", Status: directory.StatusDeactivated,
		},
	}}
	firmSvc, err := firms.NewService(&fakeFirmStore{firms: map[string]*firms.Firm{
		"firm-1": {ID: "firm-1", Slug: "acme", Name: "Acme Law LLP", Status: firms.StatusActive},
	}})
	require.NoError(t, err)

	tokens, err := token.NewService([]byte("test-secret"), token.NewMemoryRevocationStore())
	require.NoError(t, err)
	sessions := session.NewMemoryStore(0)
	ghosts := &fakeGhosts{slugs: map[string]string{}}

	return NewExtractor(tokens, sessions, users, firmSvc, ghosts), tokens, sessions, users, ghosts
}

func bearerRequest(tok string) *http.Request {
	r := httptest.NewRequest("GET", "/api/cases", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	return r
}

func TestExtractBearerHeader(t *testing.T) {
	e, tokens, _, _, _ := testExtractor(t)
	tok, _, err := tokens.IssueAccessToken(&auth.Principal{UserID: "user-1", Email: "ada@acme.law", Role: auth.RoleAttorney, FirmID: "firm-1", FirmSlug: "acme"})
	require.NoError(t, err)

	id, err := e.Extract(context.Background(), bearerRequest(tok), strategy.Bearer)
	require.NoError(t, err)
	assert.Equal(t, MethodBearer, id.Method)
	assert.Equal(t, "user-1", id.Principal.UserID)
	assert.Equal(t, auth.RoleAttorney, id.Principal.Role)
	assert.Equal(t, "acme", id.Principal.FirmSlug)
	assert.True(t, id.Principal.HasPermission(auth.PermCaseWrite))
}

func TestExtractBearerCookieFallback(t *testing.T) {
	e, tokens, _, _, _ := testExtractor(t)
	tok, _, err := tokens.IssueAccessToken(&auth.Principal{UserID: "user-1", Role: auth.RoleAttorney, FirmID: "firm-1"})
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/api/cases", nil)
	r.AddCookie(&http.Cookie{Name: CookieAccessToken, Value: tok})

	id, err := e.Extract(context.Background(), r, strategy.Bearer)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.Principal.UserID)
}

func TestExtractBearerAcceptsAdminToken(t *testing.T) {
	e, tokens, _, _, _ := testExtractor(t)
	tok, _, err := tokens.IssueAdminToken(&auth.Principal{UserID: "admin-1", Role: auth.RolePlatformAdmin}, nil)
	require.NoError(t, err)

	id, err := e.Extract(context.Background(), bearerRequest(tok), strategy.Bearer)
	require.NoError(t, err)
	assert.Equal(t, auth.RolePlatformAdmin, id.Principal.Role)
}

func TestExtractBearerRejectsRefreshToken(t *testing.T) {
	e, tokens, _, _, _ := testExtractor(t)
	tok, _, err := tokens.IssueRefreshToken("user-1", "firm-1", 0)
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), bearerRequest(tok), strategy.Bearer)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestExtractNoCredentials(t *testing.T) {
	e, _, _, _, _ := testExtractor(t)
	r := httptest.NewRequest("GET", "/api/cases", nil)
	_, err := e.Extract(context.Background(), r, strategy.Bearer)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestExtractMalformedAuthorizationHeader(t *testing.T) {
	e, _, _, _, _ := testExtractor(t)
	r := httptest.NewRequest("GET", "/api/cases", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	_, err := e.Extract(context.Background(), r, strategy.Bearer)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestExtractDeactivatedUser(t *testing.T) {
	e, tokens, _, _, _ := testExtractor(t)
	tok, _, err := tokens.IssueAccessToken(&auth.Principal{UserID: "gone-1", Role: auth.RoleStaff, FirmID: "firm-1"})
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), bearerRequest(tok), strategy.Bearer)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestExtractRoleComesFromDirectoryNotClaims(t *testing.T) {
	e, tokens, _, users, _ := testExtractor(t)
	tok, _, err := tokens.IssueAccessToken(&auth.Principal{UserID: "user-1", Role: auth.RoleAttorney, FirmID: "firm-1"})
	require.NoError(t, err)

	// Demote the user after issuance.
	users.users["user-1"].Role = auth.RoleStaff

	id, err := e.Extract(context.Background(), bearerRequest(tok), strategy.Bearer)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleStaff, id.Principal.Role)
	assert.False(t, id.Principal.HasPermission(auth.PermCaseWrite))
}

func TestExtractSession(t *testing.T) {
	e, _, sessions, _, _ := testExtractor(t)
	sid, err := sessions.Create(context.Background(), "user-1", auth.RoleAttorney, "firm-1")
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/dashboard", nil)
	r.AddCookie(&http.Cookie{Name: CookieSession, Value: sid})

	id, err := e.Extract(context.Background(), r, strategy.Session)
	require.NoError(t, err)
	assert.Equal(t, MethodSession, id.Method)
	assert.Equal(t, sid, id.SessionID)
	assert.Equal(t, "acme", id.Principal.FirmSlug)
}

func TestExtractSessionUnknownID(t *testing.T) {
	e, _, _, _, _ := testExtractor(t)
	r := httptest.NewRequest("GET", "/dashboard", nil)
	r.AddCookie(&http.Cookie{Name: CookieSession, Value: "nope"})
	_, err := e.Extract(context.Background(), r, strategy.Session)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestExtractHybridPrefersBearer(t *testing.T) {
	e, tokens, sessions, _, _ := testExtractor(t)
	tok, _, err := tokens.IssueAccessToken(&auth.Principal{UserID: "admin-1", Role: auth.RolePlatformAdmin})
	require.NoError(t, err)
	sid, err := sessions.Create(context.Background(), "user-1", auth.RoleAttorney, "firm-1")
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/api/auth/session", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	r.AddCookie(&http.Cookie{Name: CookieSession, Value: sid})

	id, err := e.Extract(context.Background(), r, strategy.Hybrid)
	require.NoError(t, err)
	assert.Equal(t, MethodBearer, id.Method)
	assert.Equal(t, "admin-1", id.Principal.UserID)
}

func TestExtractHybridFallsBackToSession(t *testing.T) {
	e, _, sessions, _, _ := testExtractor(t)
	sid, err := sessions.Create(context.Background(), "user-1", auth.RoleAttorney, "firm-1")
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/api/auth/session", nil)
	r.AddCookie(&http.Cookie{Name: CookieSession, Value: sid})

	id, err := e.Extract(context.Background(), r, strategy.Hybrid)
	require.NoError(t, err)
	assert.Equal(t, MethodSession, id.Method)
}

func TestExtractHybridInvalidBearerDoesNotFallBack(t *testing.T) {
	e, _, sessions, _, _ := testExtractor(t)
	sid, err := sessions.Create(context.Background(), "user-1", auth.RoleAttorney, "firm-1")
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/api/auth/session", nil)
	r.Header.Set("Authorization", "Bearer not-a-token")
	r.AddCookie(&http.Cookie{Name: CookieSession, Value: sid})

	_, err = e.Extract(context.Background(), r, strategy.Hybrid)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestExtractGhostScopeApplied(t *testing.T) {
	e, tokens, _, _, ghosts := testExtractor(t)
	ghosts.slugs["admin-1"] = "acme"

	tok, _, err := tokens.IssueAccessToken(&auth.Principal{UserID: "admin-1", Role: auth.RolePlatformAdmin})
	require.NoError(t, err)

	id, err := e.Extract(context.Background(), bearerRequest(tok), strategy.Bearer)
	require.NoError(t, err)
	assert.Equal(t, "acme", id.Principal.GhostFirmSlug)
}
