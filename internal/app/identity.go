package app

import (
	"context"
	"errors"

	"salesboard/internal/domain"
)

// ErrAnonymousDisabled is returned for an empty token when no anonymous
// sign-in is configured.
var ErrAnonymousDisabled = errors.New("anonymous sign-in is disabled")

// AnonymousSignIn establishes a fresh anonymous identity.
type AnonymousSignIn interface {
	SignInAnonymously(ctx context.Context) (domain.Identity, error)
}

// IdentityPolicy resumes the identity behind a token, or signs in
// anonymously when no token is given.
type IdentityPolicy struct {
	verifiers []domain.TokenVerifier
	anonymous AnonymousSignIn
}

// NewIdentityPolicy builds a policy trying verifiers in order. anonymous
// may be nil to require a token.
func NewIdentityPolicy(anonymous AnonymousSignIn, verifiers ...domain.TokenVerifier) *IdentityPolicy {
	return &IdentityPolicy{verifiers: verifiers, anonymous: anonymous}
}

// AcquireIdentity implements domain.IdentityProvider. Failures are wrapped in
// a domain.AuthError.
func (p *IdentityPolicy) AcquireIdentity(ctx context.Context, token string) (domain.Identity, error) {
	if token == "" {
		if p.anonymous == nil {
			return domain.Identity{}, &domain.AuthError{Err: ErrAnonymousDisabled}
		}
		id, err := p.anonymous.SignInAnonymously(ctx)
		if err != nil {
			return domain.Identity{}, &domain.AuthError{Err: err}
		}
		return id, nil
	}

	errs := make([]error, 0, len(p.verifiers))
	for _, v := range p.verifiers {
		id, err := v.VerifyToken(ctx, token)
		if err == nil {
			if id.Token == "" {
				id.Token = token
			}
			return id, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return domain.Identity{}, &domain.AuthError{Err: ErrSessionNotFound}
	}
	return domain.Identity{}, &domain.AuthError{Err: errors.Join(errs...)}
}
