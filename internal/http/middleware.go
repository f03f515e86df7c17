package http

import (
	"context"
	"net/http"
	"strings"

	"expenses/internal/core"
	"expenses/internal/log"
)

type contextKey string

const userContextKey contextKey = "user"

// userFromContext returns the user resolved by requireAuth.
func userFromContext(ctx context.Context) *core.User {
	u, _ := ctx.Value(userContextKey).(*core.User)
	return u
}

// accessToken reads the access token from its cookie, falling back to an
// Authorization: Bearer header.
func accessToken(r *http.Request) string {
	if v := cookieValue(r, accessTokenCookie); v != "" {
		return v
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// requireAuth resolves the caller and rejects the request when the token is
// missing, invalid, expired or belongs to a deleted user.
func (s *Server) requireAuth(next handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		token := accessToken(r)
		if token == "" {
			return core.Unauthorized("Unauthorized request")
		}
		u, err := s.users.Authenticate(r.Context(), token)
		if err != nil {
			return err
		}

		ctx := context.WithValue(r.Context(), userContextKey, u)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUserID, u.ID))
		return next(w, r.WithContext(ctx))
	}
}

// cors allows credentialed requests from a single configured origin. With no
// origin configured it is a no-op.
func cors(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if origin == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")
			if r.Header.Get("Origin") != origin {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
