package handlers

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader carries the shared key on requests from other instances.
const APIKeyHeader = "X-Api-Key"

// RequireAPIKey rejects requests whose X-Api-Key header does not match key.
// An empty key disables the check.
func RequireAPIKey(key string, next http.Handler) http.Handler {
	if key == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing or invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
