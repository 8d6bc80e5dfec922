package providers

import (
	"context"
)

// AuthorizeRequest is the result of building an authorization URL.
type AuthorizeRequest struct {
	// URL is the provider authorization endpoint URL the user agent should
	// be redirected to.
	URL string

	// CodeVerifier is the PKCE verifier bound to this authorization
	// request. Set only when PKCE was requested; the caller must retain it
	// for the code exchange.
	CodeVerifier string
}

// Provider is the identity provider client. Implementations perform the
// network operations of the OAuth flow; callers own all correlation and
// session state.
type Provider interface {
	// Name returns the provider name (e.g. "oidc", "mock").
	Name() string

	// BuildAuthorizeURL constructs the authorization URL for a login
	// attempt. scopes may be nil to use the provider defaults. When
	// usePKCE is true the returned request carries the code verifier.
	BuildAuthorizeURL(scopes []string, state string, usePKCE bool) (*AuthorizeRequest, error)

	// ExchangeCode exchanges an authorization code (plus the PKCE code
	// verifier, empty when PKCE is not in use) for token material.
	// Structured provider rejections are returned as *Error.
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenMaterial, error)

	// FetchUserInfo retrieves the user profile for an access token.
	// Provider-reported auth failures are returned as *Error.
	FetchUserInfo(ctx context.Context, accessToken string) (*UserInfo, error)

	// RevokeToken revokes an access token at the provider.
	RevokeToken(ctx context.Context, accessToken string) error

	// HealthCheck verifies that the provider is reachable. Useful for
	// readiness probes and startup validation.
	HealthCheck(ctx context.Context) error
}

// TokenRefresher is implemented by providers that support the refresh
// grant. It is optional: the core flow works without it, and callers
// type-assert when a refresh is requested.
type TokenRefresher interface {
	// RefreshToken exchanges a refresh token for fresh token material.
	RefreshToken(ctx context.Context, refreshToken string) (*TokenMaterial, error)
}

// UserInfo represents the user profile returned by a provider.
type UserInfo struct {
	// Subject is the unique user identifier from the provider.
	Subject string

	// Email is the user's email address.
	Email string

	// EmailVerified indicates if the email is verified.
	EmailVerified bool

	// Name is the user's full name.
	Name string

	// Picture is the URL of the user's profile picture.
	Picture string

	// Claims holds the full raw claim set from the userinfo response.
	// Serving this verbatim preserves provider-specific claims the typed
	// fields do not cover.
	Claims map[string]any
}
