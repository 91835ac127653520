// Package sso implements OpenID Connect sign-in and bearer token
// verification.
package sso

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"salesboard/internal/domain"
)

// Config holds the OIDC settings read from the environment.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether enough is configured to talk to a provider.
func (c Config) Enabled() bool {
	return c.Issuer != "" && c.ClientID != ""
}

// Claims are the identity claims read from a verified ID token.
type Claims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
}

// Username picks the login name for a local account: the email if present,
// otherwise the subject.
func (c Claims) Username() string {
	if c.Email != "" {
		return c.Email
	}
	return c.Subject
}

// Provider wraps a discovered OIDC provider.
type Provider struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	oauth2   oauth2.Config
}

var _ domain.TokenVerifier = (*Provider)(nil)

// NewProvider discovers the issuer's configuration.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled() {
		return nil, errors.New("oidc issuer and client id are required")
	}
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider: %w", err)
	}
	return &Provider{
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

// AuthCodeURL returns the provider login URL for state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth2.AuthCodeURL(state)
}

// Exchange trades an authorization code for verified identity claims.
func (p *Provider) Exchange(ctx context.Context, code string) (Claims, error) {
	token, err := p.oauth2.Exchange(ctx, code)
	if err != nil {
		return Claims{}, fmt.Errorf("exchange code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return Claims{}, errors.New("no id_token in token response")
	}
	return p.verify(ctx, rawIDToken)
}

// VerifyToken accepts an ID token as a bearer credential. The subject is
// the identity.
func (p *Provider) VerifyToken(ctx context.Context, token string) (domain.Identity, error) {
	claims, err := p.verify(ctx, token)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{ID: claims.Subject, Token: token}, nil
}

func (p *Provider) verify(ctx context.Context, raw string) (Claims, error) {
	idToken, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return Claims{}, fmt.Errorf("verify id token: %w", err)
	}
	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return Claims{}, fmt.Errorf("parse claims: %w", err)
	}
	if claims.Subject == "" {
		claims.Subject = idToken.Subject
	}
	return claims, nil
}
