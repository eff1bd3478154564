package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"gitlab.com/gitlab-org/ai-gateway/internal/httputil"
)

const authTypeHeader = "X-Gitlab-Authentication-Type"

// Middleware returns a chi middleware that authenticates requests via Bearer
// token and places the resulting User on the request context. When bypass is
// set (local development), every request gets a debug user.
func Middleware(authenticator *Authenticator, bypass bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			if bypass {
				user := &User{Authenticated: true, IsDebug: true}
				next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
				return
			}

			if r.Header.Get(authTypeHeader) != "oidc" {
				httputil.WriteMissingHeaderError(w, reqID, "Invalid authentication token type - only OIDC is supported")
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.WriteAuthError(w, reqID, "No authorization header presented")
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader || token == "" {
				httputil.WriteAuthError(w, reqID, "Invalid authorization header. Use: Authorization: Bearer <token>")
				return
			}

			user, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, ErrNoKeys) {
					slog.Error("critical auth failure: empty jwks", "request_id", reqID)
					httputil.WriteInternalError(w, reqID, "Authentication unavailable")
					return
				}
				httputil.WriteInternalError(w, reqID, "Internal error during authentication")
				return
			}
			if !user.Authenticated {
				httputil.WriteAuthError(w, reqID, "Forbidden by auth provider")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}
