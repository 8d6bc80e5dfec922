// Package oauth provides the HTTP surface of the login gateway: flow
// initiation and callback completion for the authorization code flow with
// PKCE, plus the session-bound endpoints (userinfo, revocation,
// introspection, refresh) served against the session cookie.
package oauth

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// SessionCookieName is the cookie carrying the opaque session identifier.
const SessionCookieName = "session_id"

// Config holds the HTTP handler configuration.
type Config struct {
	// BaseURL is the public base URL of the gateway, e.g.
	// "https://login.example.com". Controls Secure cookies and HSTS.
	BaseURL string

	// PostLoginRedirectURL is where the browser is sent after a successful
	// callback. Defaults to "/".
	PostLoginRedirectURL string

	// CookiePath scopes the session cookie. Defaults to "/".
	CookiePath string

	// EnableIntrospection exposes the token introspection endpoint, which
	// returns raw token material. Off by default; enable only on trusted
	// internal deployments.
	EnableIntrospection bool

	// RateLimitPerSecond and RateLimitBurst configure per-IP rate
	// limiting. Zero disables it.
	RateLimitPerSecond int
	RateLimitBurst     int

	// AuditLogging enables security audit events.
	AuditLogging bool

	// Logger is the structured logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	parsed, err := url.Parse(c.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("base URL %q is not an absolute URL", c.BaseURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("base URL scheme must be http or https, got %q", parsed.Scheme)
	}

	if c.PostLoginRedirectURL == "" {
		c.PostLoginRedirectURL = "/"
	}
	if c.CookiePath == "" {
		c.CookiePath = "/"
	}
	if c.RateLimitPerSecond > 0 && c.RateLimitBurst <= 0 {
		c.RateLimitBurst = c.RateLimitPerSecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return nil
}

// secureCookies reports whether cookies must carry the Secure attribute.
func (c *Config) secureCookies() bool {
	return strings.HasPrefix(c.BaseURL, "https://")
}
