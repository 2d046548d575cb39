package domain

import "context"

// Identity is the authenticated principal behind a realtime connection.
type Identity struct {
	UserID    string
	PublicKey string
}

// IdentityVerifier validates a bearer credential presented on connect.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}
