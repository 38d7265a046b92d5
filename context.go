package authkit

import (
	"context"

	"github.com/zenith-platform/authkit/role"
)

// Identity is the request-scoped result of a successful authentication:
// who is calling, with what role, on which session.
type Identity struct {
	AccountID string
	Role      role.Role
	SessionID string
}

type identityContextKey struct{}
type clientIPContextKey struct{}
type userAgentContextKey struct{}

// WithIdentity attaches the authenticated identity to ctx. The HTTP
// middleware calls this after AuthenticateRequest succeeds; handlers read
// it back with IdentityFromContext.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the identity attached by WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

// WithClientIP attaches the caller's IP address to ctx. The engine uses it
// for rate limiting and security events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}
