// Package identity validates client-supplied tokens. Token issuance is not
// in scope; the verifier only turns a token into a verified identity plus a
// session-scoped credential.
package identity

import (
	"context"
	"errors"
)

// ErrUnauthorized means the token was rejected by the identity provider.
// The client must reconnect with a fresh token; the core never retries.
var ErrUnauthorized = errors.New("identity: token rejected")

// Identity is a verified user.
type Identity struct {
	Subject     string `json:"subject"`
	DisplayName string `json:"displayName"`
}

// Verifier exchanges a token for a verified identity and an opaque
// credential usable against the calendar backend. Called once per session.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, string, error)
}
