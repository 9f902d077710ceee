// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains *auth.Principal
	// Set by: identity extraction middleware (pkg/identity)
	// Required by: guard checks, tenant-scoped handlers
	// Type: *auth.Principal
	PrincipalKey Key = "principal"

	// StrategyKey contains the credential strategy chosen for the request
	// Set by: strategy middleware (pkg/api)
	// Type: strategy.Strategy
	StrategyKey Key = "auth_strategy"

	// RequestIDKey contains request ID string (UUID)
	// Set by: HTTP middleware, observability layer
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// SessionIDKey contains the opaque session id backing the request,
	// when the request authenticated with a session cookie
	// Set by: identity extraction middleware
	// Type: string
	SessionIDKey Key = "session_id"

	// LoggerKey contains *observability.Logger
	// Set by: Observability middleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)
