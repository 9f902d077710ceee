// Package ghost implements time-boxed impersonation sessions. A platform
// operator with the ghost permission can act inside a single firm's scope;
// while the session is active, tenant checks treat the operator as bound
// to that firm instead of passing platform-wide. Every session carries its
// own audit trail from start to end.
package ghost

import (
	"errors"
	"time"
)

// DefaultMaxDuration bounds a ghost session when no explicit limit is
// configured.
const DefaultMaxDuration = time.Hour

// Lifecycle failure sentinels.
var (
	ErrNotFound     = errors.New("ghost session not found")
	ErrConflict     = errors.New("ghost session already active")
	ErrFirmNotFound = errors.New("ghost target firm not found")
	ErrNotPermitted = errors.New("ghost mode not permitted")
)

// AuditEntry is one step in a session's trail.
type AuditEntry struct {
	At     time.Time `json:"at"`
	Action string    `json:"action"`
	Detail string    `json:"detail,omitempty"`
}

// Session is one impersonation session. An operator has at most one
// active session at a time. Token is the opaque handle handed to the
// operator at start; ending the session requires presenting it back.
type Session struct {
	ID         string       `json:"id"`
	Token      string       `json:"token"`
	OperatorID string       `json:"adminUserId"`
	FirmID     string       `json:"targetFirmId"`
	FirmSlug   string       `json:"targetFirmSlug"`
	Purpose    string       `json:"purpose"`
	Notes      string       `json:"notes,omitempty"`
	StartedAt  time.Time    `json:"startedAt"`
	ExpiresAt  time.Time    `json:"expiresAt"`
	EndedAt    *time.Time   `json:"endedAt,omitempty"`
	Trail      []AuditEntry `json:"auditTrail"`
}

// Active reports whether the session is neither ended nor expired at now.
func (s *Session) Active(now time.Time) bool {
	if s == nil || s.EndedAt != nil {
		return false
	}
	return now.Before(s.ExpiresAt)
}
