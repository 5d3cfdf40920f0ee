// Package middleware provides HTTP middleware shared by the agent
// protocol's HTTP transport: request-id correlation and baseline
// security headers.
package middleware

import (
	"net/http"
)

// SecurityHeaders wraps an http.Handler and adds baseline security headers
// appropriate for a JSON-RPC/SSE API: no content-sniffing, no referrer
// leakage, no embedding in a frame. Unlike the teacher's HTML-frontend
// version, this carries no CSP — there's no HTML surface here to frame.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// SecureHeadersFunc wraps an http.HandlerFunc and adds security headers.
func SecureHeadersFunc(next http.HandlerFunc) http.HandlerFunc {
	return SecurityHeaders(next).ServeHTTP
}
