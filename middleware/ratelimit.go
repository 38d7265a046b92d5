package middleware

import (
	"net/http"
	"strconv"

	authkit "github.com/zenith-platform/authkit"
	"github.com/zenith-platform/authkit/netutil"
	"github.com/zenith-platform/authkit/ratelimit"
	"github.com/zenith-platform/authkit/role"
)

// RateLimit gates requests through the limiter under the given policy,
// keyed by client address. Standard X-RateLimit headers are set on every
// response; rejected requests get 429 with Retry-After.
func RateLimit(limiter *ratelimit.Limiter, policy ratelimit.Policy, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := netutil.ClientAddr(
				r.Header.Get("X-Forwarded-For"),
				r.Header.Get("X-Real-IP"),
				r.RemoteAddr,
			)

			res := limiter.Check(r.Context(), policy, identity, action)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.ResetAt.IsZero() {
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			}

			if !res.Allowed {
				if res.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfter))
				}
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission passes only requests whose authenticated identity may
// perform perm on the resource. Mount after Authenticate.
func RequirePermission(perm role.Permission, resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := authkit.IdentityFromContext(r.Context())
			if !ok || !role.Can(id.Role, perm, resource) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
