package shield

import "net/http"

// HeaderConfig maps header names to the values set on every response.
type HeaderConfig map[string]string

// DefaultHeaders returns the standard docflow security headers. The API
// serves JSON only, so the CSP is maximally restrictive.
func DefaultHeaders() HeaderConfig {
	return HeaderConfig{
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
	}
}

// SecurityHeaders returns middleware that applies the configured headers.
func SecurityHeaders(cfg HeaderConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for name, value := range cfg {
				w.Header().Set(name, value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
