package api

import (
	"net/http"
	"time"

	"github.com/lexvault/lexvault/pkg/identity"
)

// refreshCookiePath scopes the refresh token cookie to the one endpoint
// that consumes it, so it never rides along on ordinary API calls.
const refreshCookiePath = "/api/auth/refresh"

func (s *Server) cookie(name, value, path string, ttl time.Duration) *http.Cookie {
	// Lax in development keeps local cross-port frontends working; in
	// production the auth cookies never ride on cross-site requests.
	sameSite := http.SameSiteLaxMode
	if s.cfg.Server.Production() {
		sameSite = http.SameSiteStrictMode
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.Server.Production(),
		SameSite: sameSite,
	}
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, s.cookie(identity.CookieSession, sessionID, "/", s.cfg.Auth.SessionTTL))
}

func (s *Server) setTokenCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, s.cookie(identity.CookieAccessToken, accessToken, "/", s.cfg.Auth.AccessTokenTTL))
	http.SetCookie(w, s.cookie(identity.CookieRefreshToken, refreshToken, refreshCookiePath, s.cfg.Auth.RefreshTokenTTL))
}

func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	expire := func(name, path string) {
		c := s.cookie(name, "", path, 0)
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
	expire(identity.CookieSession, "/")
	expire(identity.CookieAccessToken, "/")
	expire(identity.CookieRefreshToken, refreshCookiePath)
}
