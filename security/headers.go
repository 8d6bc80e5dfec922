package security

import (
	"net/http"
	"net/url"
)

// SetSecurityHeaders sets defensive headers on every gateway response.
// The login endpoints issue redirects and small JSON bodies only, so the
// policy can be strict: nothing embeds these pages and nothing loads
// external resources from them.
func SetSecurityHeaders(w http.ResponseWriter, baseURL string) {
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	w.Header().Set("Referrer-Policy", "no-referrer")

	// HSTS only when the deployment is actually served over TLS.
	if parsed, err := url.Parse(baseURL); err == nil && parsed.Scheme == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	// Responses carry redirect targets and token metadata; never cache them.
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	w.Header().Set("Pragma", "no-cache")
}
