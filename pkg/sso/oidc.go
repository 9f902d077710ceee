package sso

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/lexvault/lexvault/pkg/config"
)

// OIDCProvider implements OpenID Connect SSO.
type OIDCProvider struct {
	name         string
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCProvider discovers the issuer and builds the provider.
func NewOIDCProvider(ctx context.Context, name string, cfg config.SSOConfig) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
	}

	return &OIDCProvider{
		name:         name,
		provider:     provider,
		verifier:     verifier,
		oauth2Config: oauth2Config,
	}, nil
}

// Name returns the provider's route name.
func (p *OIDCProvider) Name() string { return p.name }

// InitiateLogin redirects to the OIDC authorization endpoint.
func (p *OIDCProvider) InitiateLogin(w http.ResponseWriter, r *http.Request, state string) error {
	authURL := p.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	http.Redirect(w, r, authURL, http.StatusFound)
	return nil
}

// HandleCallback exchanges the authorization code and verifies the ID
// token.
func (p *OIDCProvider) HandleCallback(ctx context.Context, r *http.Request) (*ExternalIdentity, error) {
	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	oauth2Token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("missing id_token in token response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verify ID token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse ID token claims: %w", err)
	}

	identity := &ExternalIdentity{
		Subject:    idToken.Subject,
		Attributes: make(map[string]string),
	}
	for k, v := range claims {
		if str, ok := v.(string); ok {
			identity.Attributes[k] = str
		}
	}
	identity.Email = identity.Attributes["email"]
	identity.Name = identity.Attributes["name"]

	if identity.Email == "" {
		return nil, fmt.Errorf("ID token carries no email claim")
	}
	return identity, nil
}
