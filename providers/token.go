package providers

import (
	"time"

	"golang.org/x/oauth2"
)

// TokenMaterial is the fixed-shape token record produced at the provider
// boundary. Provider responses are normalized into it once, so the rest of
// the system never probes loosely-typed token payloads.
type TokenMaterial struct {
	AccessToken  string
	RefreshToken string    // optional
	TokenType    string    // typically "Bearer"
	Scope        string    // optional, space-delimited as granted
	ExpiresAt    time.Time // zero when the provider did not report expiry
}

// HasRefreshToken reports whether a refresh grant is possible for this
// token.
func (t *TokenMaterial) HasRefreshToken() bool {
	return t != nil && t.RefreshToken != ""
}

// TokenMaterialFromOAuth2 normalizes an oauth2.Token into TokenMaterial.
// The granted scope lives in the token's extra fields per RFC 6749 §5.1.
func TokenMaterialFromOAuth2(token *oauth2.Token) *TokenMaterial {
	if token == nil {
		return nil
	}

	scope, _ := token.Extra("scope").(string)

	return &TokenMaterial{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Scope:        scope,
		ExpiresAt:    token.Expiry,
	}
}
