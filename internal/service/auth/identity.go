package auth

import (
	"context"
	"errors"
)

var (
	ErrNotSignedIn     = errors.New("not signed in")
	ErrUnknownProvider = errors.New("unknown identity provider")
	ErrStateMismatch   = errors.New("oauth state mismatch")
	ErrMissingCode     = errors.New("authorization code missing")
	ErrNoEmail         = errors.New("identity provider returned no email")
)

// Identity is the signed-in user as reported by the identity provider.
type Identity struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Provider string `json:"provider"`
}

type identityKey struct{}

// WithIdentity stores the identity in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity placed by the middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.Email != ""
}
