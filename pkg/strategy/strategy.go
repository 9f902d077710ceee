// Package strategy classifies request paths into the credential model used
// to authenticate them. Classification is static and prefix-based: it does
// no I/O and is total over the space of strings, so it can run before any
// credential is inspected.
package strategy

import "strings"

// Strategy is the credential model selected for a request path.
type Strategy string

const (
	// Session authenticates via the server-side session cookie.
	Session Strategy = "session"
	// Bearer authenticates via a bearer token only.
	Bearer Strategy = "bearer"
	// Hybrid paths establish or accept both models, so one login works for
	// browser pages and API callers alike.
	Hybrid Strategy = "hybrid"
)

const (
	authEntryPrefix = "/api/auth"
	apiPrefix       = "/api/"
)

// Classify returns the strategy for a request path. Paths under the
// authentication entry namespace are hybrid, other API paths are bearer,
// and everything else falls back to session.
func Classify(path string) Strategy {
	if path == authEntryPrefix || strings.HasPrefix(path, authEntryPrefix+"/") {
		return Hybrid
	}
	if strings.HasPrefix(path, apiPrefix) {
		return Bearer
	}
	return Session
}
