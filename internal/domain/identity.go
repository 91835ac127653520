package domain

import "context"

// Identity is the opaque handle scoping a user's record collection.
type Identity struct {
	ID        string `json:"id"`
	Anonymous bool   `json:"anonymous"`
	// Token resumes this identity on a later acquisition.
	Token string `json:"-"`
}

// IdentityProvider acquires the identity for a dashboard session.
type IdentityProvider interface {
	// AcquireIdentity resumes the identity behind token, or establishes a
	// fresh anonymous identity when token is empty.
	AcquireIdentity(ctx context.Context, token string) (Identity, error)
}

// TokenVerifier resolves a credential token to the identity it names.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (Identity, error)
}
