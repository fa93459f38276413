package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/adminAuth"
	"github.com/MrEthical07/adminAuth/clientstore"
	"github.com/MrEthical07/adminAuth/userdir"
)

// Checker is the part of [adminAuth.Engine] the guards need.
type Checker interface {
	CheckAuth(ctx context.Context) (*adminAuth.CheckAuthResult, error)
}

var _ Checker = (*adminAuth.Engine)(nil)

type userContextKey struct{}

// UserFromContext returns the user a guard admitted.
func UserFromContext(ctx context.Context) (adminAuth.PublicUser, bool) {
	u, ok := ctx.Value(userContextKey{}).(adminAuth.PublicUser)
	return u, ok
}

// Guard admits requests whose bearer token names a live session. Each
// request gets its own client storage holding only that token, so the
// session refresh and any token cleanup stay request-scoped.
func Guard(checker Checker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if checker == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			storage := clientstore.NewMemory()
			_ = storage.Set(clientstore.KeyAuthToken, token)

			ctx := adminAuth.WithClientStorage(r.Context(), storage)
			ctx = adminAuth.WithClientIP(ctx, clientIP(r))
			ctx = adminAuth.WithUserAgent(ctx, r.UserAgent())

			res, err := checker.CheckAuth(ctx)
			if err != nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			if !res.Authenticated {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(r.Context(), userContextKey{}, res.User)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects requests whose user, set by [Guard], lacks role.
func RequireRole(role userdir.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if u.Role != role {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
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

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
