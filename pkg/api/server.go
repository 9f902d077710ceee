// Package api wires the HTTP surface: credential strategy selection,
// identity extraction, the authentication endpoints, and the guarded
// admin and tenant routes.
package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lexvault/lexvault/pkg/audit"
	"github.com/lexvault/lexvault/pkg/auth"
	"github.com/lexvault/lexvault/pkg/config"
	"github.com/lexvault/lexvault/pkg/directory"
	"github.com/lexvault/lexvault/pkg/firms"
	"github.com/lexvault/lexvault/pkg/ghost"
	"github.com/lexvault/lexvault/pkg/guard"
	"github.com/lexvault/lexvault/pkg/httputil"
	"github.com/lexvault/lexvault/pkg/identity"
	"github.com/lexvault/lexvault/pkg/observability"
	"github.com/lexvault/lexvault/pkg/session"
	"github.com/lexvault/lexvault/pkg/sso"
	"github.com/lexvault/lexvault/pkg/token"
)

// Deps carries everything the server needs. All fields except Metrics,
// Audit, and SSO are required.
type Deps struct {
	Config    *config.Config
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Tokens    *token.Service
	Sessions  session.Store
	Users     directory.Store
	Firms     *firms.Service
	Ghosts    *ghost.Manager
	Extractor *identity.Extractor
	Guard     *guard.Guard
	Audit     audit.Logger
	SSO       []sso.Provider
}

// Server is the HTTP API server.
type Server struct {
	cfg       *config.Config
	logger    *observability.Logger
	metrics   *observability.Metrics
	tokens    *token.Service
	sessions  session.Store
	users     directory.Store
	firms     *firms.Service
	ghosts    *ghost.Manager
	extractor *identity.Extractor
	guard     *guard.Guard
	audit     audit.Logger
	router    *mux.Router
}

// NewServer validates the dependencies and mounts all routes.
func NewServer(deps Deps) (*Server, error) {
	switch {
	case deps.Config == nil:
		return nil, errors.New("api: config is required")
	case deps.Logger == nil:
		return nil, errors.New("api: logger is required")
	case deps.Tokens == nil:
		return nil, errors.New("api: token service is required")
	case deps.Sessions == nil:
		return nil, errors.New("api: session store is required")
	case deps.Users == nil:
		return nil, errors.New("api: user directory is required")
	case deps.Firms == nil:
		return nil, errors.New("api: firm service is required")
	case deps.Ghosts == nil:
		return nil, errors.New("api: ghost manager is required")
	case deps.Extractor == nil:
		return nil, errors.New("api: identity extractor is required")
	case deps.Guard == nil:
		return nil, errors.New("api: guard is required")
	}
	if deps.Audit == nil {
		deps.Audit = audit.NopLogger{}
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		tokens:    deps.Tokens,
		sessions:  deps.Sessions,
		users:     deps.Users,
		firms:     deps.Firms,
		ghosts:    deps.Ghosts,
		extractor: deps.Extractor,
		guard:     deps.Guard,
		audit:     deps.Audit,
		router:    mux.NewRouter(),
	}
	s.setupRoutes(deps.SSO)
	return s, nil
}

// Router returns the fully wired handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes(providers []sso.Provider) {
	r := s.router

	r.Use(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		httputil.CORSMiddleware(s.cfg.Server.AllowedOrigins),
		httputil.ContentTypeMiddleware,
	)
	if s.metrics != nil {
		r.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}
	r.Use(s.strategyMiddleware, s.identityMiddleware)

	// Authentication entry points. Hybrid strategy: one login serves
	// browser sessions and API bearer flows alike.
	r.HandleFunc("/api/auth/login", s.handleLogin).Methods("POST")
	r.HandleFunc("/api/auth/refresh", s.handleRefresh).Methods("POST")
	r.HandleFunc("/api/auth/logout", s.handleLogout).Methods("POST")
	r.HandleFunc("/api/auth/logout-all", s.handleLogoutAll).Methods("POST")
	r.HandleFunc("/api/auth/session", s.handleSessionInfo).Methods("GET")

	if len(providers) > 0 {
		ssoHandlers := sso.NewHandlers(providers, s.users, s, s.audit, s.cfg.Server.Production())
		ssoHandlers.Register(r)
	}

	// Platform administration.
	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(s.guard.Authenticated())
	ghostRoutes := admin.PathPrefix("/ghost").Subrouter()
	ghostRoutes.Use(s.guard.Permission(auth.PermGhostMode))
	ghostRoutes.HandleFunc("/start", s.handleGhostStart).Methods("POST")
	ghostRoutes.HandleFunc("/end", s.handleGhostEnd).Methods("POST")
	ghostRoutes.HandleFunc("", s.handleGhostCurrent).Methods("GET")

	// Tenant-scoped surface.
	firmRoutes := r.PathPrefix("/api/firms/{firmSlug}").Subrouter()
	firmRoutes.Use(s.guard.Authenticated(), s.guard.TenantScope("firmSlug"), s.ghostTrailMiddleware)
	firmRoutes.HandleFunc("", s.handleFirmInfo).Methods("GET")
}

// handleFirmInfo returns the firm a tenant-scoped caller addressed. It
// doubles as the canonical example of a tenant-guarded route.
func (s *Server) handleFirmInfo(w http.ResponseWriter, r *http.Request) {
	slug, ok := httputil.ParsePathStringOrError(w, r, "firmSlug")
	if !ok {
		return
	}
	firm, err := s.firms.FindBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, firms.ErrNotFound) {
			httputil.WriteNotFound(w, "firm not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("firm lookup failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, firm)
}
