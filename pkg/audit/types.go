package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of security event.
type EventType string

const (
	// Authentication events
	EventTypeAuthLogin        EventType = "auth.login"
	EventTypeAuthLoginFailed  EventType = "auth.login_failed"
	EventTypeAuthLogout       EventType = "auth.logout"
	EventTypeAuthTokenRefresh EventType = "auth.token_refresh"
	EventTypeAuthTokenRevoke  EventType = "auth.token_revoke"
	EventTypeAuthSSOLogin     EventType = "auth.sso_login"

	// Authorization events
	EventTypeAuthzAccessDenied EventType = "authz.access_denied"
	EventTypeAuthzTenantDenied EventType = "authz.tenant_denied"

	// Ghost-mode events
	EventTypeGhostStart   EventType = "ghost.session_start"
	EventTypeGhostEnd     EventType = "ghost.session_end"
	EventTypeGhostExpired EventType = "ghost.session_expired"
	EventTypeGhostDenied  EventType = "ghost.denied"
)

// EventStatus represents the outcome of an event.
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event is a single security audit record. The shape is fixed: external
// sinks only need these fields.
type Event struct {
	ID        int64       `json:"id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	FirmID string `json:"firm_id,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	// Detail
	Reason   string         `json:"reason,omitempty"`
	Message  string         `json:"message,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToJSON serializes the event.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
