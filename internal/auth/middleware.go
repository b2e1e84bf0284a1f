package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

type contextKey string

// UserIDContextKey stores the authenticated user id in the request context.
const UserIDContextKey contextKey = "user_id"

// Middleware validates the Authorization bearer token on every request it
// guards and injects the user id into the request context.
type Middleware struct {
	tokens *TokenManager
	log    zerolog.Logger
}

// NewMiddleware builds an auth Middleware around a TokenManager.
func NewMiddleware(tokens *TokenManager, log zerolog.Logger) *Middleware {
	return &Middleware{tokens: tokens, log: log.With().Str("component", "auth").Logger()}
}

// RequireAuth rejects requests without a valid access token and otherwise
// passes the authenticated user id downstream via the request context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r.Header.Get("Authorization"))
		if raw == "" {
			if cookie, err := r.Cookie("accessToken"); err == nil {
				raw = cookie.Value
			}
		}
		if raw == "" {
			http.Error(w, `{"error":{"message":"missing access token"}}`, http.StatusUnauthorized)
			return
		}

		userID, err := m.tokens.VerifyAccessToken(raw)
		if err != nil {
			m.log.Debug().Err(err).Msg("rejected access token")
			http.Error(w, `{"error":{"message":"invalid or expired token"}}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID extracts the authenticated user id from a request context,
// returning "" if called outside a RequireAuth-guarded handler.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDContextKey).(string)
	return v
}

// bearerToken strips a "Bearer " prefix (case-insensitive) from an
// Authorization header value, returning "" if the header was empty.
func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return header[len("bearer "):]
	}
	return header
}
