package middleware

import (
	"net/http"
)

// ContentTypeJSON defaults the Content-Type header to application/json.
// Handlers writing problems or other media types override it.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}
