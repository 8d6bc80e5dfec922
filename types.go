package oauth

import (
	"time"

	"github.com/kerliix/oauth-bff/providers"
)

// ErrorResponse is the JSON error body (RFC 6749 §5.2 shape).
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// TokenResponse is the JSON rendering of a session's token material, served
// by the introspection and refresh endpoints.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
}

// newTokenResponse renders token material for serialization.
func newTokenResponse(token *providers.TokenMaterial) *TokenResponse {
	resp := &TokenResponse{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Scope:        token.Scope,
	}
	if !token.ExpiresAt.IsZero() {
		resp.ExpiresAt = token.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// RevocationResponse is the JSON body returned by the revocation endpoint.
// Revoked reflects the provider-side outcome only; the local session is
// always destroyed.
type RevocationResponse struct {
	Revoked bool   `json:"revoked"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the JSON body of the health endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
}
