// Package auth is the identity collaborator: it maps request credentials to
// a user id. The core only needs that mapping; session management lives
// elsewhere.
package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Verifier resolves a bearer token to a user id.
type Verifier interface {
	Verify(token string) (string, bool)
}

// StaticVerifier resolves tokens from a fixed map, loaded from config.
type StaticVerifier struct {
	tokens map[string]string // token → user id
}

// NewStaticVerifier creates a verifier over a token→user map.
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

// Verify looks up the token.
func (v *StaticVerifier) Verify(token string) (string, bool) {
	userID, ok := v.tokens[token]
	return userID, ok
}

// UserID extracts the authenticated user id from a request context.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// Middleware rejects requests without a valid bearer token and stores the
// resolved user id in the request context. No side effects on rejection.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
				return
			}
			userID, ok := v.Verify(token)
			if !ok {
				http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
