package firebase

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/auth"

	"salesboard/internal/domain"
)

const anonymousProvider = "anonymous"

// Verifier resolves Firebase ID tokens to identities.
type Verifier struct {
	auth *auth.Client
}

var _ domain.TokenVerifier = (*Verifier)(nil)

// NewVerifier creates a token verifier from the client.
func (c *Client) NewVerifier() *Verifier {
	return &Verifier{auth: c.auth}
}

// VerifyToken checks the token signature and expiry and returns its uid.
func (v *Verifier) VerifyToken(ctx context.Context, token string) (domain.Identity, error) {
	tok, err := v.auth.VerifyIDToken(ctx, token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("verify firebase token: %w", err)
	}
	return identityFromToken(tok, token), nil
}

func identityFromToken(tok *auth.Token, raw string) domain.Identity {
	return domain.Identity{
		ID:        tok.UID,
		Anonymous: tok.Firebase.SignInProvider == anonymousProvider,
		Token:     raw,
	}
}
