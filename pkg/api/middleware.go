package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/lexvault/lexvault/pkg/auth"
	"github.com/lexvault/lexvault/pkg/contextkeys"
	"github.com/lexvault/lexvault/pkg/httputil"
	"github.com/lexvault/lexvault/pkg/identity"
	"github.com/lexvault/lexvault/pkg/observability"
	"github.com/lexvault/lexvault/pkg/strategy"
)

// strategyMiddleware classifies the path before any credential is read.
func (s *Server) strategyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		strat := strategy.Classify(r.URL.Path)
		ctx := context.WithValue(r.Context(), contextkeys.StrategyKey, strat)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identityMiddleware resolves the principal for the request. Requests
// with no credentials pass through anonymously; the guards decide which
// routes need a principal. On guarded routes a presented-but-invalid
// credential fails here with 401 so handlers never see a
// half-authenticated request. The hybrid entry points are the exception:
// their handlers exist to establish or tear down credentials, so a stale
// session cookie or expired access token must not lock the caller out of
// login, refresh, or logout. There the request proceeds anonymously and
// the handler judges the credentials it actually consumes.
func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		strat := strategyFromContext(ctx)

		id, err := s.extractor.Extract(ctx, r, strat)
		if err != nil {
			if errors.Is(err, identity.ErrNoCredentials) {
				next.ServeHTTP(w, r)
				return
			}
			if errors.Is(err, identity.ErrInvalidCredential) {
				s.countExtraction(strat, "invalid")
				if strat == strategy.Hybrid {
					next.ServeHTTP(w, r)
					return
				}
				httputil.WriteUnauthorized(w)
				return
			}
			observability.FromContext(ctx).WithError(err).Error("identity extraction failed")
			s.countExtraction(strat, "error")
			httputil.WriteInternalError(w)
			return
		}

		s.countExtraction(strat, "ok")
		ctx = auth.ContextWithPrincipal(ctx, id.Principal)
		if id.SessionID != "" {
			ctx = context.WithValue(ctx, contextkeys.SessionIDKey, id.SessionID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ghostTrailMiddleware appends each tenant-scoped request served under
// an active impersonation session to that session's audit trail. Runs
// after the tenant guard, so denied requests never reach it. The append
// is best-effort; a trail write failure does not fail the request.
func (s *Server) ghostTrailMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := auth.PrincipalFromContext(r.Context()); ok && p.GhostFirmSlug != "" {
			if err := s.ghosts.Record(r.Context(), p.UserID, "REQUEST", r.Method+" "+r.URL.Path); err != nil {
				observability.FromContext(r.Context()).WithError(err).Warn("ghost trail append failed")
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) countExtraction(strat strategy.Strategy, status string) {
	if s.metrics != nil {
		s.metrics.ExtractionsTotal.WithLabelValues(string(strat), status).Inc()
	}
}

func strategyFromContext(ctx context.Context) strategy.Strategy {
	if strat, ok := ctx.Value(contextkeys.StrategyKey).(strategy.Strategy); ok {
		return strat
	}
	return strategy.Session
}

func sessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextkeys.SessionIDKey).(string); ok {
		return id
	}
	return ""
}
