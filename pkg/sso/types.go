// Package sso implements single sign-on against external identity
// providers. The provider only proves who the caller is; account lookup,
// role, and tenant always come from the local directory, so an identity
// provider can never mint a user the platform does not know.
package sso

import (
	"context"
	"errors"
	"net/http"
)

// Flow failure sentinels.
var (
	ErrUnknownProvider = errors.New("unknown sso provider")
	ErrStateMismatch   = errors.New("sso state mismatch")
	ErrNoLocalAccount  = errors.New("no local account for sso identity")
)

// ExternalIdentity is the verified identity returned by a provider.
type ExternalIdentity struct {
	// Subject is the provider's stable identifier for the user.
	Subject string

	Email string
	Name  string

	// Attributes carries the remaining string claims verbatim.
	Attributes map[string]string
}

// Provider is one configured identity provider.
type Provider interface {
	Name() string

	// InitiateLogin redirects the browser to the provider's authorization
	// endpoint with the given anti-forgery state.
	InitiateLogin(w http.ResponseWriter, r *http.Request, state string) error

	// HandleCallback exchanges the callback request for a verified
	// identity.
	HandleCallback(ctx context.Context, r *http.Request) (*ExternalIdentity, error)
}
