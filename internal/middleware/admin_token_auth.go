package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"cypher-graphql/internal/auth"
)

// AdminTokenHeader carries the shared admin token.
const AdminTokenHeader = "X-Admin-Token"

// AdminSubject is the auth subject recorded for admin-token callers.
const AdminSubject = "admin_token"

// AdminTokenAuthMiddleware guards admin endpoints (schema reload, audit
// listing) with a shared token compared in constant time.
func AdminTokenAuthMiddleware(token string) (func(http.Handler) http.Handler, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("admin auth token is required")
	}
	expected := sha256.Sum256([]byte(token))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := sha256.Sum256([]byte(strings.TrimSpace(r.Header.Get(AdminTokenHeader))))
			if subtle.ConstantTimeCompare(provided[:], expected[:]) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}

			ctx := auth.WithContext(r.Context(), &auth.Context{
				Authenticated: true,
				Subject:       AdminSubject,
				Claims:        map[string]interface{}{"auth_method": AdminSubject},
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}
