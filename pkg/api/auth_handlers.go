package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/lexvault/lexvault/pkg/audit"
	"github.com/lexvault/lexvault/pkg/auth"
	"github.com/lexvault/lexvault/pkg/directory"
	"github.com/lexvault/lexvault/pkg/firms"
	"github.com/lexvault/lexvault/pkg/guard"
	"github.com/lexvault/lexvault/pkg/httputil"
	"github.com/lexvault/lexvault/pkg/identity"
	"github.com/lexvault/lexvault/pkg/observability"
	"github.com/lexvault/lexvault/pkg/token"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`

	// TenantID optionally pins the login to a firm slug; a mismatch with
	// the user's own firm is a tenant-scope denial, not a login failure.
	TenantID string `json:"tenantId"`
}

type userInfo struct {
	ID       string    `json:"id"`
	Email    string    `json:"email"`
	Role     auth.Role `json:"role"`
	FirmID   string    `json:"firmId,omitempty"`
	FirmSlug string    `json:"firmSlug,omitempty"`
}

type authResponse struct {
	User         userInfo  `json:"user"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	RedirectPath string    `json:"redirectPath"`
}

// redirectPathFor sends each role to its landing page after login.
func redirectPathFor(p *auth.Principal) string {
	switch p.Role {
	case auth.RolePlatformAdmin, auth.RolePlatformSupport:
		return "/admin"
	case auth.RoleFirmAdmin:
		return "/firm/" + p.FirmSlug + "/admin"
	default:
		return "/dashboard"
	}
}

// handleLogin authenticates a password credential and establishes both
// credential models at once: a server-side session for the browser and a
// token pair for API callers.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Password, "password") {
		return
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			s.failLogin(w, r, req.Email, "unknown user")
			return
		}
		logger.WithError(err).Error("login user lookup failed")
		httputil.WriteInternalError(w)
		return
	}

	if err := directory.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		s.failLogin(w, r, req.Email, "password mismatch")
		return
	}
	if !user.Active() {
		s.failLogin(w, r, req.Email, "user deactivated")
		return
	}

	principal, err := s.principalForUser(r, user)
	if err != nil {
		if errors.Is(err, errFirmUnavailable) {
			s.failLogin(w, r, req.Email, "firm unavailable")
			return
		}
		logger.WithError(err).Error("login firm resolution failed")
		httputil.WriteInternalError(w)
		return
	}

	// A credential that checks out against the wrong tenant is a scope
	// denial, audited as such, and no credentials are issued.
	if req.TenantID != "" && !principal.PlatformLevel() && principal.FirmSlug != req.TenantID {
		event := audit.NewEvent(audit.EventTypeAuthzTenantDenied, audit.EventStatusDenied, r)
		event.UserID = user.ID
		event.Email = user.Email
		event.FirmID = user.FirmID
		event.Reason = guard.ReasonTenantAccessDenied
		event.Message = "login pinned to tenant " + req.TenantID
		s.logAudit(r, event)
		s.countLogin("password", "denied")
		httputil.WriteForbidden(w, guard.ReasonTenantAccessDenied, "tenant access denied")
		return
	}

	// A session that was not persisted is not a session; this failure is
	// a hard login failure, not a degraded success.
	sessionID, err := s.sessions.Create(ctx, user.ID, user.Role, user.FirmID)
	if err != nil {
		logger.WithError(err).Error("session create failed")
		httputil.WriteInternalError(w)
		return
	}
	s.countSessionCreated()

	access, expiresAt, err := s.tokens.IssueAccessToken(principal)
	if err != nil {
		logger.WithError(err).Error("access token issue failed")
		httputil.WriteInternalError(w)
		return
	}
	refresh, _, err := s.tokens.IssueRefreshToken(user.ID, user.FirmID, user.TokenVersion)
	if err != nil {
		logger.WithError(err).Error("refresh token issue failed")
		httputil.WriteInternalError(w)
		return
	}

	if err := s.users.RecordLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		logger.WithError(err).Warn("login stamp failed")
	}

	s.setSessionCookie(w, sessionID)
	s.setTokenCookies(w, access, refresh)

	event := audit.NewEvent(audit.EventTypeAuthLogin, audit.EventStatusSuccess, r)
	event.UserID = user.ID
	event.Email = user.Email
	event.FirmID = user.FirmID
	s.logAudit(r, event)
	s.countLogin("password", "success")

	httputil.WriteSuccess(w, authResponse{
		User:         principalInfo(principal),
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		RedirectPath: redirectPathFor(principal),
	})
}

// failLogin answers every credential failure identically so responses do
// not reveal which part of the credential was wrong. The audit trail
// keeps the distinction.
func (s *Server) failLogin(w http.ResponseWriter, r *http.Request, email, reason string) {
	event := audit.NewEvent(audit.EventTypeAuthLoginFailed, audit.EventStatusFailure, r)
	event.Email = email
	event.Message = reason
	s.logAudit(r, event)
	s.countLogin("password", "failure")
	httputil.WriteUnauthorized(w)
}

var errFirmUnavailable = errors.New("firm unavailable")

func (s *Server) principalForUser(r *http.Request, user *directory.User) (*auth.Principal, error) {
	p := &auth.Principal{
		UserID:      user.ID,
		Email:       user.Email,
		Role:        user.Role,
		FirmID:      user.FirmID,
		Permissions: auth.PermissionsFor(user.Role),
	}
	if user.FirmID == "" {
		return p, nil
	}
	firm, err := s.firms.FindByID(r.Context(), user.FirmID)
	if err != nil {
		if errors.Is(err, firms.ErrNotFound) {
			return nil, errFirmUnavailable
		}
		return nil, err
	}
	if !firm.Active() {
		return nil, errFirmUnavailable
	}
	p.FirmSlug = firm.Slug
	return p, nil
}

func principalInfo(p *auth.Principal) userInfo {
	return userInfo{
		ID:       p.UserID,
		Email:    p.Email,
		Role:     p.Role,
		FirmID:   p.FirmID,
		FirmSlug: p.FirmSlug,
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// handleRefresh rotates a refresh token. The presented token is revoked
// whether or not rotation succeeds past verification, so a replayed
// token always fails.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	raw := ""
	if c, err := r.Cookie(identity.CookieRefreshToken); err == nil {
		raw = c.Value
	}
	if raw == "" {
		var req refreshRequest
		if r.Body != nil && r.ContentLength != 0 {
			if !httputil.ParseJSONOrError(w, r, &req) {
				return
			}
		}
		raw = req.RefreshToken
	}
	if raw == "" {
		httputil.WriteUnauthorized(w)
		return
	}

	access, refresh, err := s.tokens.Rotate(ctx, raw, s.extractor)
	if err != nil {
		if isCredentialError(err) {
			event := audit.NewEvent(audit.EventTypeAuthTokenRefresh, audit.EventStatusFailure, r)
			event.Message = err.Error()
			s.logAudit(r, event)
			s.countToken("rotate", "failure")
			httputil.WriteUnauthorized(w)
			return
		}
		logger.WithError(err).Error("token rotation failed")
		s.countToken("rotate", "error")
		httputil.WriteInternalError(w)
		return
	}

	s.setTokenCookies(w, access, refresh)
	s.countToken("rotate", "success")

	event := audit.NewEvent(audit.EventTypeAuthTokenRefresh, audit.EventStatusSuccess, r)
	if claims, err := s.tokens.Verify(ctx, access, token.TypeAccess); err == nil {
		event.UserID = claims.Subject
		event.Email = claims.Email
		event.FirmID = claims.FirmID
	}
	s.logAudit(r, event)

	httputil.WriteSuccess(w, map[string]string{
		"accessToken":  access,
		"refreshToken": refresh,
	})
}

func isCredentialError(err error) bool {
	return errors.Is(err, token.ErrExpired) ||
		errors.Is(err, token.ErrBadSignature) ||
		errors.Is(err, token.ErrWrongType) ||
		errors.Is(err, token.ErrRevoked) ||
		errors.Is(err, identity.ErrInvalidCredential)
}

/// handleLogout tears down whatever credentials the request presented:
// the session is destroyed and any presented tokens join the revocation
// set. Logout of an already-logged-out client succeeds.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	if sid := s.presentedSessionID(r); sid != "" {
		if err := s.sessions.Destroy(ctx, sid); err != nil {
			logger.WithError(err).Warn("session destroy failed")
		} else if s.metrics != nil {
			s.metrics.SessionsDestroyedTotal.Inc()
		}
	}

	if bearer, ok := identity.BearerToken(r); ok {
		if err := s.tokens.Revoke(ctx, bearer); err != nil {
			logger.WithError(err).Warn("access token revoke failed")
		}
	}
	if c, err := r.Cookie(identity.CookieRefreshToken); err == nil && c.Value != "" {
		if err := s.tokens.Revoke(ctx, c.Value); err != nil {
			logger.WithError(err).Warn("refresh token revoke failed")
		}
	}

	s.clearAuthCookies(w)

	event := audit.NewEvent(audit.EventTypeAuthLogout, audit.EventStatusSuccess, r)
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		event.UserID = p.UserID
		event.Email = p.Email
		event.FirmID = p.FirmID
	}
	s.logAudit(r, event)

	httputil.WriteNoContent(w)
}

// handleLogoutAll invalidates every credential the user holds anywhere:
// the refresh chain version is bumped, the current session destroyed,
// and presented tokens revoked.
func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		httputil.WriteUnauthorized(w)
		return
	}

	if _, err := s.users.BumpTokenVersion(ctx, p.UserID); err != nil {
		logger.WithError(err).Error("token version bump failed")
		httputil.WriteInternalError(w)
		return
	}

	if sid := s.presentedSessionID(r); sid != "" {
		if err := s.sessions.Destroy(ctx, sid); err != nil {
			logger.WithError(err).Warn("session destroy failed")
		}
	}
	if bearer, ok := identity.BearerToken(r); ok {
		if err := s.tokens.Revoke(ctx, bearer); err != nil {
			logger.WithError(err).Warn("access token revoke failed")
		}
	}

	s.clearAuthCookies(w)
	s.countToken("revoke", "success")

	event := audit.NewEvent(audit.EventTypeAuthTokenRevoke, audit.EventStatusSuccess, r)
	event.UserID = p.UserID
	event.Email = p.Email
	event.FirmID = p.FirmID
	event.Message = "logout everywhere"
	s.logAudit(r, event)

	httputil.WriteNoContent(w)
}

type sessionInfoResponse struct {
	Authenticated bool     `json:"authenticated"`
	User          userInfo `json:"user"`
	Permissions   []string `json:"permissions"`
	GhostFirmSlug string   `json:"ghostFirmSlug,omitempty"`
}

// handleSessionInfo reports the caller's resolved identity. Everything
// here reflects current store state, not the credential's snapshot.
func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w)
		return
	}

	httputil.WriteSuccess(w, sessionInfoResponse{
		Authenticated: true,
		User:          principalInfo(p),
		Permissions:   auth.PermissionList(p.Role),
		GhostFirmSlug: p.GhostFirmSlug,
	})
}

// EstablishSession logs in a directory user without a password check,
// for SSO callbacks that already verified the identity externally. It
// issues exactly the credentials a password login issues and redirects
// to the role's landing page.
func (s *Server) EstablishSession(w http.ResponseWriter, r *http.Request, user *directory.User) error {
	ctx := r.Context()

	principal, err := s.principalForUser(r, user)
	if err != nil {
		return err
	}

	sessionID, err := s.sessions.Create(ctx, user.ID, user.Role, user.FirmID)
	if err != nil {
		return err
	}
	s.countSessionCreated()

	access, _, err := s.tokens.IssueAccessToken(principal)
	if err != nil {
		return err
	}
	refresh, _, err := s.tokens.IssueRefreshToken(user.ID, user.FirmID, user.TokenVersion)
	if err != nil {
		return err
	}

	if err := s.users.RecordLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("login stamp failed")
	}

	s.setSessionCookie(w, sessionID)
	s.setTokenCookies(w, access, refresh)
	s.countLogin("sso", "success")

	http.Redirect(w, r, redirectPathFor(principal), http.StatusFound)
	return nil
}

func (s *Server) presentedSessionID(r *http.Request) string {
	if sid := sessionIDFromContext(r.Context()); sid != "" {
		return sid
	}
	if c, err := r.Cookie(identity.CookieSession); err == nil {
		return c.Value
	}
	return ""
}

func (s *Server) logAudit(r *http.Request, event *audit.Event) {
	if err := s.audit.Log(r.Context(), event); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("audit write failed")
	}
}

func (s *Server) countLogin(method, status string) {
	if s.metrics != nil {
		s.metrics.LoginsTotal.WithLabelValues(method, status).Inc()
	}
}

func (s *Server) countSessionCreated() {
	if s.metrics != nil {
		s.metrics.SessionsCreatedTotal.Inc()
	}
}

func (s *Server) countToken(op, status string) {
	if s.metrics != nil {
		s.metrics.TokenOperationsTotal.WithLabelValues(op, status).Inc()
	}
}
