package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	authkit "github.com/playcricket/authkit"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity injected by [RequireAuth].
func IdentityFromContext(ctx context.Context) (*authkit.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*authkit.Identity)
	return id, ok
}

// RequireAuth rejects requests without a valid bearer access token. On
// success the verified identity is available through [IdentityFromContext],
// and the client IP and user agent are attached to the request context for
// the audit trail.
func RequireAuth(svc *authkit.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if svc == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithRequestInfo(r.Context(), r)
			id, err := svc.Authenticate(ctx, token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, identityContextKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole layers a role check on top of [RequireAuth]: the authenticated
// user must hold at least one of the given role codes.
func RequireRole(svc *authkit.Service, roles ...string) func(http.Handler) http.Handler {
	auth := RequireAuth(svc)
	return func(next http.Handler) http.Handler {
		return auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok || !id.User.HasAnyRole(roles...) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// WithRequestInfo copies the caller's IP and user agent from the request
// into the context so service calls record them in audit events and
// session device names.
func WithRequestInfo(ctx context.Context, r *http.Request) context.Context {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ctx = authkit.WithClientIP(ctx, host)
	return authkit.WithUserAgent(ctx, r.UserAgent())
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
