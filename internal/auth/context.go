// ABOUTME: Caller identity carried through request handlers
// ABOUTME: Provides WithIdentity/FromContext for propagating the admitted key via context

package auth

import (
	"context"
)

// Identity describes an admitted caller.
type Identity struct {
	KeyID  string // fingerprint of the presented key, empty when auth is off or the path is public
	Public bool   // request hit a public path
}

type identityKey struct{}

// WithIdentity returns a new context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the Identity attached by the middleware, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
