package api

import (
	"errors"
	"net/http"

	"github.com/lexvault/lexvault/pkg/auth"
	"github.com/lexvault/lexvault/pkg/ghost"
	"github.com/lexvault/lexvault/pkg/guard"
	"github.com/lexvault/lexvault/pkg/httputil"
	"github.com/lexvault/lexvault/pkg/observability"
)

type ghostStartRequest struct {
	TargetFirmID string `json:"targetFirmId"`
	Purpose      string `json:"purpose"`
	Notes        string `json:"notes"`
}

type ghostEndRequest struct {
	SessionToken string `json:"sessionToken"`
}

// handleGhostStart opens an impersonation session for the calling
// platform operator and returns it, including the opaque token that the
// end endpoint requires. One active session per operator; a second start
// conflicts until the first is ended.
func (s *Server) handleGhostStart(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w)
		return
	}

	var req ghostStartRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.TargetFirmID, "targetFirmId") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Purpose, "purpose") {
		return
	}

	sess, err := s.ghosts.Start(r.Context(), p, req.TargetFirmID, req.Purpose, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, ghost.ErrNotPermitted):
			httputil.WriteForbidden(w, guard.ReasonInsufficientPermission, "ghost mode not permitted")
		case errors.Is(err, ghost.ErrFirmNotFound):
			httputil.WriteNotFound(w, "firm not found")
		case errors.Is(err, ghost.ErrConflict):
			httputil.WriteConflict(w, "GHOST_SESSION_ACTIVE", "a ghost session is already active")
		default:
			observability.FromContext(r.Context()).WithError(err).Error("ghost start failed")
			httputil.WriteInternalError(w)
		}
		return
	}

	httputil.WriteCreated(w, sess)
}

// handleGhostEnd closes the caller's active ghost session. The session
// token issued at start must be presented back.
func (s *Server) handleGhostEnd(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w)
		return
	}

	var req ghostEndRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.SessionToken, "sessionToken") {
		return
	}

	sess, err := s.ghosts.End(r.Context(), p, req.SessionToken)
	if err != nil {
		if errors.Is(err, ghost.ErrNotFound) {
			httputil.WriteNotFound(w, "no active ghost session")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("ghost end failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, sess)
}

// handleGhostCurrent reports the caller's active ghost session, if any.
func (s *Server) handleGhostCurrent(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w)
		return
	}

	sess, err := s.ghosts.Resolve(r.Context(), p.UserID)
	if err != nil {
		if errors.Is(err, ghost.ErrNotFound) {
			httputil.WriteNotFound(w, "no active ghost session")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("ghost lookup failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, sess)
}
