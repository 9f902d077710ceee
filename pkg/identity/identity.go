// Package identity resolves the verified principal for a request. A
// credential (bearer token or session cookie) only proves who the caller
// is; role, permissions, and tenant are re-fetched from the directory on
// every extraction so revocations and role changes take effect on the next
// request, not at next login.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/lexvault/lexvault/pkg/auth"
	"github.com/lexvault/lexvault/pkg/directory"
	"github.com/lexvault/lexvault/pkg/firms"
	"github.com/lexvault/lexvault/pkg/session"
	"github.com/lexvault/lexvault/pkg/strategy"
	"github.com/lexvault/lexvault/pkg/token"
)

// Cookie names shared between extraction and the handlers that set them.
const (
	CookieAccessToken  = "accessToken"
	CookieRefreshToken = "refreshToken"
	CookieSession      = "sessionId"
)

// Extraction failure sentinels.
var (
	// ErrNoCredentials means the request carried nothing to authenticate
	// with. Distinct from an invalid credential so middleware can let
	// anonymous requests through to public handlers.
	ErrNoCredentials = errors.New("no credentials presented")

	// ErrInvalidCredential means a credential was presented but did not
	// resolve to an active principal.
	ErrInvalidCredential = errors.New("invalid credentials")
)

// Method records which credential model actually authenticated the request.
type Method string

const (
	MethodBearer  Method = "bearer"
	MethodSession Method = "session"
)

// Identity is the result of a successful extraction.
type Identity struct {
	Principal *auth.Principal
	Method    Method

	// SessionID is set when Method is MethodSession.
	SessionID string
}

// GhostSource reports the firm slug a platform user is currently
// impersonating, or "" when no ghost session is active.
type GhostSource interface {
	ActiveFirmSlug(ctx context.Context, userID string) (string, error)
}

// Extractor resolves principals from requests.
type Extractor struct {
	tokens   *token.Service
	sessions session.Store
	users    directory.Store
	firms    *firms.Service
	ghosts   GhostSource

	// Collapses concurrent directory lookups for the same user into one
	// query. Requests from a busy client tend to arrive in bursts.
	group singleflight.Group
}

// NewExtractor wires an extractor. ghosts may be nil when impersonation is
// not deployed.
func NewExtractor(tokens *token.Service, sessions session.Store, users directory.Store, firmSvc *firms.Service, ghosts GhostSource) *Extractor {
	return &Extractor{
		tokens:   tokens,
		sessions: sessions,
		users:    users,
		firms:    firmSvc,
		ghosts:   ghosts,
	}
}

// Extract resolves the request's principal under the given strategy.
// Hybrid tries bearer credentials first and falls back to the session
// cookie only when no bearer credential was presented at all; a presented
// but invalid bearer token fails the request rather than silently
// downgrading to the session.
func (e *Extractor) Extract(ctx context.Context, r *http.Request, strat strategy.Strategy) (*Identity, error) {
	switch strat {
	case strategy.Bearer:
		return e.fromBearer(ctx, r)
	case strategy.Session:
		return e.fromSession(ctx, r)
	default:
		id, err := e.fromBearer(ctx, r)
		if errors.Is(err, ErrNoCredentials) {
			return e.fromSession(ctx, r)
		}
		return id, err
	}
}

// BearerToken pulls the raw bearer credential from the request: the
// Authorization header wins, the access-token cookie is the fallback for
// browser fetches that cannot set headers.
func BearerToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := cutBearer(h); ok {
			return tok, true
		}
		return "", false
	}
	if c, err := r.Cookie(CookieAccessToken); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}

func cutBearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):]), true
	}
	return "", false
}

func (e *Extractor) fromBearer(ctx context.Context, r *http.Request) (*Identity, error) {
	raw, ok := BearerToken(r)
	if !ok {
		if r.Header.Get("Authorization") != "" {
			// A malformed Authorization header is a presented credential.
			return nil, fmt.Errorf("%w: malformed authorization header", ErrInvalidCredential)
		}
		return nil, ErrNoCredentials
	}

	claims, err := e.tokens.Verify(ctx, raw, token.TypeAccess)
	if errors.Is(err, token.ErrWrongType) {
		claims, err = e.tokens.Verify(ctx, raw, token.TypeAdmin)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	principal, err := e.resolvePrincipal(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	return &Identity{Principal: principal, Method: MethodBearer}, nil
}

func (e *Extractor) fromSession(ctx context.Context, r *http.Request) (*Identity, error) {
	c, err := r.Cookie(CookieSession)
	if err != nil || c.Value == "" {
		return nil, ErrNoCredentials
	}

	sess, err := e.sessions.Resolve(ctx, c.Value)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, fmt.Errorf("%w: session not found", ErrInvalidCredential)
		}
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	principal, err := e.resolvePrincipal(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	return &Identity{Principal: principal, Method: MethodSession, SessionID: sess.ID}, nil
}

// resolvePrincipal loads the user's current record and builds the
// principal. Claims and session records are treated as proof of identity
// only; everything authorization-relevant comes from here.
func (e *Extractor) resolvePrincipal(ctx context.Context, userID string) (*auth.Principal, error) {
	p, _, err := e.PrincipalByID(ctx, userID)
	return p, err
}

// PrincipalByID builds the principal for a user from current store state
// and returns the user's minimum acceptable refresh token version.
// Satisfies the token service's rotation source.
func (e *Extractor) PrincipalByID(ctx context.Context, userID string) (*auth.Principal, int64, error) {
	v, err, _ := e.group.Do("user:"+userID, func() (any, error) {
		return e.users.FindByID(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, 0, fmt.Errorf("%w: unknown user", ErrInvalidCredential)
		}
		return nil, 0, fmt.Errorf("load user: %w", err)
	}
	user := v.(*directory.User)
	if !user.Active() {
		return nil, 0, fmt.Errorf("%w: user deactivated", ErrInvalidCredential)
	}

	p := &auth.Principal{
		UserID:      user.ID,
		Email:       user.Email,
		Role:        user.Role,
		FirmID:      user.FirmID,
		Permissions: auth.PermissionsFor(user.Role),
	}

	if user.FirmID != "" && e.firms != nil {
		firm, err := e.firms.FindByID(ctx, user.FirmID)
		if err != nil {
			if errors.Is(err, firms.ErrNotFound) {
				return nil, 0, fmt.Errorf("%w: firm not found", ErrInvalidCredential)
			}
			return nil, 0, fmt.Errorf("load firm: %w", err)
		}
		if !firm.Active() {
			return nil, 0, fmt.Errorf("%w: firm suspended", ErrInvalidCredential)
		}
		p.FirmSlug = firm.Slug
	}

	if e.ghosts != nil && p.Role.PlatformLevel() {
		slug, err := e.ghosts.ActiveFirmSlug(ctx, p.UserID)
		if err != nil {
			return nil, 0, fmt.Errorf("resolve ghost session: %w", err)
		}
		p.GhostFirmSlug = slug
	}

	return p, user.TokenVersion, nil
}
