// Package auth issues access tokens and resolves them on incoming requests.
package auth

import (
	"net/http"
	"strings"
)

const userHeader = "userID"

// Guard resolves the bearer token (or the "token" query parameter, which
// websocket clients use) and exposes the user id through Headers. Requests
// without a valid token pass through anonymously.
func Guard(issuer *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Del(userHeader)

			token := r.URL.Query().Get("token")
			if auth := r.Header.Get("Authorization"); len(auth) != 0 {
				if scheme, value, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
					token = value
				}
			}
			if len(token) != 0 {
				if claims, err := issuer.Validate(token); err == nil {
					r.Header.Set(userHeader, claims.UserID)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Headers returns the user id set by Guard, or "".
func Headers(r *http.Request) string {
	return r.Header.Get(userHeader)
}
