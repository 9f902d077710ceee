package sso

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/lexvault/lexvault/pkg/audit"
	"github.com/lexvault/lexvault/pkg/directory"
	"github.com/lexvault/lexvault/pkg/httputil"
	"github.com/lexvault/lexvault/pkg/observability"
)

const (
	stateCookie = "lexvault_sso_state"
	stateTTL    = 10 * time.Minute
)

// SessionEstablisher turns a verified local user into an authenticated
// browser session. Implemented by the API server so the SSO flow issues
// exactly the same credentials as a password login.
type SessionEstablisher interface {
	EstablishSession(w http.ResponseWriter, r *http.Request, user *directory.User) error
}

// Handlers serves the SSO login and callback endpoints.
type Handlers struct {
	providers   map[string]Provider
	users       directory.Store
	establisher SessionEstablisher
	audit       audit.Logger
	secure      bool
}

// NewHandlers wires the SSO endpoints. secure controls the state cookie's
// Secure flag.
func NewHandlers(providers []Provider, users directory.Store, establisher SessionEstablisher, auditLogger audit.Logger, secure bool) *Handlers {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Handlers{
		providers:   byName,
		users:       users,
		establisher: establisher,
		audit:       auditLogger,
		secure:      secure,
	}
}

// Register mounts the SSO routes on the router.
func (h *Handlers) Register(router *mux.Router) {
	router.HandleFunc("/api/auth/sso/{provider}/login", h.Login).Methods("GET")
	router.HandleFunc("/api/auth/sso/{provider}/callback", h.Callback).Methods("GET")
}

// Login starts the provider flow with a fresh anti-forgery state.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers[mux.Vars(r)["provider"]]
	if !ok {
		httputil.WriteNotFound(w, "unknown sso provider")
		return
	}

	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/auth/sso",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	if err := provider.InitiateLogin(w, r, state); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("sso initiate failed")
		httputil.WriteInternalError(w)
	}
}

// Callback completes the provider flow and establishes a local session.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	provider, ok := h.providers[mux.Vars(r)["provider"]]
	if !ok {
		httputil.WriteNotFound(w, "unknown sso provider")
		return
	}

	if err := h.checkState(w, r); err != nil {
		h.auditFailure(r, provider.Name(), "", "state mismatch")
		httputil.WriteBadRequest(w, "invalid sso state")
		return
	}

	identity, err := provider.HandleCallback(ctx, r)
	if err != nil {
		logger.WithError(err).Warn("sso callback rejected")
		h.auditFailure(r, provider.Name(), "", "callback rejected")
		httputil.WriteUnauthorized(w)
		return
	}

	user, err := h.users.FindByEmail(ctx, strings.ToLower(identity.Email))
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			// The provider vouched for the identity but the platform has
			// no such account. Not an account-creation path.
			h.auditFailure(r, provider.Name(), identity.Email, "no local account")
			httputil.WriteUnauthorized(w)
			return
		}
		logger.WithError(err).Error("sso user lookup failed")
		httputil.WriteInternalError(w)
		return
	}
	if !user.Active() {
		h.auditFailure(r, provider.Name(), identity.Email, "user deactivated")
		httputil.WriteUnauthorized(w)
		return
	}

	if err := h.establisher.EstablishSession(w, r, user); err != nil {
		logger.WithError(err).Error("sso session establishment failed")
		httputil.WriteInternalError(w)
		return
	}

	event := audit.NewEvent(audit.EventTypeAuthSSOLogin, audit.EventStatusSuccess, r)
	event.UserID = user.ID
	event.Email = user.Email
	event.FirmID = user.FirmID
	event.Metadata = map[string]any{"provider": provider.Name()}
	if err := h.audit.Log(ctx, event); err != nil {
		logger.WithError(err).Warn("sso audit write failed")
	}
}

func (h *Handlers) checkState(w http.ResponseWriter, r *http.Request) error {
	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" {
		return ErrStateMismatch
	}
	if r.URL.Query().Get("state") != c.Value {
		return ErrStateMismatch
	}

	// One use per state.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     "/api/auth/sso",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (h *Handlers) auditFailure(r *http.Request, provider, email, reason string) {
	event := audit.NewEvent(audit.EventTypeAuthSSOLogin, audit.EventStatusFailure, r)
	event.Email = email
	event.Message = reason
	event.Metadata = map[string]any{"provider": provider}
	if err := h.audit.Log(r.Context(), event); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("sso audit write failed")
	}
}
