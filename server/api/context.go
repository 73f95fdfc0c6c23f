package api

import "context"

// Identity describes the authenticated caller, as extracted from the
// access token by the server's auth middleware.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// IsAdmin reports whether the caller holds the admin role.
func (id Identity) IsAdmin() bool { return id.Role == "admin" }

type contextKey int

const ctxKeyIdentity contextKey = 0

// ContextWithIdentity returns a context carrying the caller identity.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// IdentityFrom extracts the caller identity placed by the auth
// middleware. The second return is false for unauthenticated contexts.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return id, ok
}
