package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"docparser/dto"
)

// BearerAuth enforces bearer-token auth against the configured secret.
// An empty token disables authentication entirely.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				unauthorized(w, r, "Missing Authorization header")
				return
			}
			if !strings.HasPrefix(header, "Bearer ") {
				unauthorized(w, r, "Invalid Authorization format")
				return
			}

			provided := strings.TrimPrefix(header, "Bearer ")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				unauthorized(w, r, "Invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		TraceID: GetTraceID(r.Context()),
	})
}
