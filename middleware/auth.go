// Package middleware translates HTTP semantics into engine calls: token
// extraction, silent refresh, rate limiting and role guards. It makes no
// authentication decisions itself.
package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	authkit "github.com/zenith-platform/authkit"
	"github.com/zenith-platform/authkit/netutil"
	"github.com/zenith-platform/authkit/token"
)

// Cookie names of the platform's auth contract. The bearer header is
// preferred for the access token; cookies are the browser fallback.
const (
	AccessCookie  = "zenith-token"
	RefreshCookie = "zenith-refresh-token"
	DeviceCookie  = "zenith-device"
)

// CookieWriter stamps auth cookies with consistent attributes.
type CookieWriter struct {
	Domain string
	// Secure should only be false in local development.
	Secure bool
}

// SetAccess writes the access token cookie.
func (c CookieWriter) SetAccess(w http.ResponseWriter, tok string, rememberMe bool) {
	maxAge := int(token.AccessTTL / time.Second)
	if rememberMe {
		maxAge = int(token.RememberMeTTL / time.Second)
	}
	c.set(w, AccessCookie, tok, maxAge)
}

// SetRefresh writes the refresh token cookie.
func (c CookieWriter) SetRefresh(w http.ResponseWriter, tok string) {
	c.set(w, RefreshCookie, tok, int(token.RefreshTTL/time.Second))
}

// SetDevice writes the long-lived device-trust cookie.
func (c CookieWriter) SetDevice(w http.ResponseWriter, deviceID string, ttl time.Duration) {
	c.set(w, DeviceCookie, deviceID, int(ttl/time.Second))
}

// Clear expires the access and refresh cookies. The device cookie survives
// logout; trust outlives the session by design.
func (c CookieWriter) Clear(w http.ResponseWriter) {
	c.set(w, AccessCookie, "", -1)
	c.set(w, RefreshCookie, "", -1)
}

func (c CookieWriter) set(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// AccessToken extracts the access token from the bearer header, falling
// back to the cookie.
func AccessToken(r *http.Request) string {
	if tok, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return tok
	}
	if c, err := r.Cookie(AccessCookie); err == nil {
		return c.Value
	}
	return ""
}

// RefreshToken extracts the refresh token cookie, if present.
func RefreshToken(r *http.Request) string {
	if c, err := r.Cookie(RefreshCookie); err == nil {
		return c.Value
	}
	return ""
}

// DeviceID extracts the device-trust cookie, if present.
func DeviceID(r *http.Request) string {
	if c, err := r.Cookie(DeviceCookie); err == nil {
		return c.Value
	}
	return ""
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	tok := value[len(bearer):]
	if tok == "" {
		return "", false
	}
	return tok, true
}

// RequestContext attaches the caller's IP and user agent to the request
// context for rate limiting and security events. Mount it ahead of every
// auth-aware handler.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := authkit.WithClientIP(r.Context(), netutil.ClientAddr(
			r.Header.Get("X-Forwarded-For"),
			r.Header.Get("X-Real-IP"),
			r.RemoteAddr,
		))
		ctx = authkit.WithUserAgent(ctx, netutil.TruncateUserAgent(r.UserAgent()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authenticate resolves the request's tokens to an identity and attaches it
// to the context. When the access token has expired but a refresh token is
// present, a new access token is minted silently and re-set as a cookie.
func Authenticate(engine *authkit.Engine, cookies CookieWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access := AccessToken(r)
			if access == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			id, newAccess, err := engine.AuthenticateRequest(r.Context(), access, RefreshToken(r))
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, authkit.ErrInfrastructureUnavailable) {
					status = http.StatusServiceUnavailable
				}
				http.Error(w, http.StatusText(status), status)
				return
			}
			if newAccess != "" {
				cookies.SetAccess(w, newAccess, false)
			}

			ctx := authkit.WithIdentity(r.Context(), *id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
