// Package token issues, verifies, rotates, and revokes the bearer tokens
// used by the authentication core. Tokens are signed JWT claims bundles
// split by type: short-lived access tokens, long-lived refresh tokens with
// minimal claims, and medium-lived admin tokens on a distinct audience.
// Verification is always bound to an expected type so a token issued for
// one context can never validate in another.
package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lexvault/lexvault/pkg/auth"
)

// Type identifies what a token may be used for.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
	TypeAdmin   Type = "admin"
)

// Audiences keep verification paths disjoint: an admin token presented to
// the access-token path fails the audience check before anything else is
// considered.
const (
	audienceAPI     = "lexvault:api"
	audienceAdmin   = "lexvault:admin"
	audienceRefresh = "lexvault:refresh"
)

func audienceFor(t Type) string {
	switch t {
	case TypeAdmin:
		return audienceAdmin
	case TypeRefresh:
		return audienceRefresh
	default:
		return audienceAPI
	}
}

// Verification failure reasons.
var (
	ErrExpired      = errors.New("token expired")
	ErrBadSignature = errors.New("token signature invalid")
	ErrWrongType    = errors.New("token type mismatch")
	ErrRevoked      = errors.New("token revoked")
)

const (
	defaultAccessTTL  = 4 * time.Hour
	defaultRefreshTTL = 14 * 24 * time.Hour
	defaultAdminTTL   = 8 * time.Hour
	defaultIssuer     = "lexvault"
)

// Claims is the signed claims bundle carried by every token.
type Claims struct {
	Email        string    `json:"email,omitempty"`
	Role         auth.Role `json:"role,omitempty"`
	FirmID       string    `json:"firm_id,omitempty"`
	TenantScope  string    `json:"tenant_scope,omitempty"`
	Permissions  []string  `json:"permissions,omitempty"`
	TokenType    Type      `json:"token_type"`
	TokenVersion int64     `json:"token_version,omitempty"`
	jwt.RegisteredClaims
}

// Service owns token issuance, verification, rotation, and the revocation
// set.
type Service struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	adminTTL   time.Duration
	revoked    RevocationStore
	now        func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithAccessTTL sets the access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL sets the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithAdminTTL sets the admin token lifetime.
func WithAdminTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.adminTTL = ttl
		}
	}
}

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService creates a token service signing with secret and tracking
// revocations in revoked.
func NewService(secret []byte, revoked RevocationStore, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: signing secret is required")
	}
	if revoked == nil {
		return nil, errors.New("token: revocation store is required")
	}
	s := &Service{
		secret:     secret,
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		adminTTL:   defaultAdminTTL,
		revoked:    revoked,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueAccessToken signs a short-lived access token embedding the
// principal's role, tenant, and permissions.
func (s *Service) IssueAccessToken(p *auth.Principal) (string, time.Time, error) {
	if p == nil || strings.TrimSpace(p.UserID) == "" {
		return "", time.Time{}, errors.New("token: principal is required")
	}
	now := s.now().UTC()
	exp := now.Add(s.accessTTL)
	claims := Claims{
		Email:       p.Email,
		Role:        p.Role,
		FirmID:      p.FirmID,
		TenantScope: p.FirmSlug,
		Permissions: auth.PermissionList(p.Role),
		TokenType:   TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   p.UserID,
			Audience:  jwt.ClaimStrings{audienceAPI},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueRefreshToken signs a long-lived refresh token with minimal claims.
// tokenVersion ties the token to the user's current refresh chain; stale
// chains are rejected at rotation.
func (s *Service) IssueRefreshToken(userID, firmID string, tokenVersion int64) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errors.New("token: userID is required")
	}
	now := s.now().UTC()
	exp := now.Add(s.refreshTTL)
	claims := Claims{
		FirmID:       firmID,
		TokenType:    TypeRefresh,
		TokenVersion: tokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{audienceRefresh},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueAdminToken signs a medium-lived token with elevated permissions on
// the admin audience, so it can never be replayed against the regular
// access-token verification path.
func (s *Service) IssueAdminToken(p *auth.Principal, elevated []auth.Permission) (string, time.Time, error) {
	if p == nil || strings.TrimSpace(p.UserID) == "" {
		return "", time.Time{}, errors.New("token: principal is required")
	}
	perms := auth.PermissionList(p.Role)
	for _, e := range elevated {
		perms = append(perms, string(e))
	}
	now := s.now().UTC()
	exp := now.Add(s.adminTTL)
	claims := Claims{
		Email:       p.Email,
		Role:        p.Role,
		FirmID:      p.FirmID,
		TenantScope: p.FirmSlug,
		Permissions: perms,
		TokenType:   TypeAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   p.UserID,
			Audience:  jwt.ClaimStrings{audienceAdmin},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify checks a token against an expected type. Order: signature and
// structural validity first, then type and audience, then revocation-set
// membership by hash.
func (s *Service) Verify(ctx context.Context, tokenString string, expected Type) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != expected {
		return nil, ErrWrongType
	}
	if !claimsHaveAudience(claims, audienceFor(expected)) {
		return nil, ErrWrongType
	}
	revoked, err := s.revoked.IsRevoked(ctx, HashToken(tokenString))
	if err != nil {
		// Fail closed on a revocation store error.
		return nil, fmt.Errorf("%w: %v", ErrRevoked, err)
	}
	if revoked {
		return nil, ErrRevoked
	}
	return claims, nil
}

// Revoke inserts the token's hash into the revocation set with the token's
// original expiry. Tokens that no longer parse need no entry; structural
// verification already rejects them.
func (s *Service) Revoke(ctx context.Context, tokenString string) error {
	claims, err := s.parse(tokenString)
	if err != nil {
		if errors.Is(err, ErrExpired) {
			return nil
		}
		return err
	}
	expiry := s.now().Add(s.refreshTTL)
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}
	return s.revoked.Revoke(ctx, HashToken(tokenString), expiry)
}

// PrincipalSource loads the current state of a user for rotation: claims
// are a snapshot, so the fresh pair is built from the store, not from the
// presented token.
type PrincipalSource interface {
	// PrincipalByID returns the principal and the minimum acceptable
	// refresh token version for the user.
	PrincipalByID(ctx context.Context, userID string) (*auth.Principal, int64, error)
}

// Rotate verifies a refresh token, revokes it unconditionally, and issues
// a fresh access/refresh pair with tokenVersion+1. The unconditional
// revoke makes rotation single-use: a second rotation of the same token
// always fails with ErrRevoked, which is what makes concurrent replay safe
// without a distributed lock.
func (s *Service) Rotate(ctx context.Context, refreshToken string, src PrincipalSource) (access, refresh string, err error) {
	claims, err := s.Verify(ctx, refreshToken, TypeRefresh)
	if err != nil {
		return "", "", err
	}

	// Revoke before issuing: even a failure past this point must leave the
	// presented token unusable.
	if err := s.Revoke(ctx, refreshToken); err != nil {
		return "", "", fmt.Errorf("rotate: revoke presented token: %w", err)
	}

	principal, minVersion, err := src.PrincipalByID(ctx, claims.Subject)
	if err != nil {
		return "", "", err
	}
	if claims.TokenVersion < minVersion {
		// Stale chain: the user's version was bumped after this token was
		// issued (logout-everywhere, credential reset).
		return "", "", ErrRevoked
	}

	access, _, err = s.IssueAccessToken(principal)
	if err != nil {
		return "", "", err
	}
	refresh, _, err = s.IssueRefreshToken(principal.UserID, principal.FirmID, claims.TokenVersion+1)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *Service) sign(claims Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) parse(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrBadSignature
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrBadSignature
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrBadSignature
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrBadSignature
	}
	return claims, nil
}

func claimsHaveAudience(claims *Claims, want string) bool {
	for _, aud := range claims.Audience {
		if aud == want {
			return true
		}
	}
	return false
}
