// Package oidc implements the identity provider client against any OpenID
// Connect provider using issuer discovery. Endpoints (authorization, token,
// userinfo, revocation) are resolved from the provider's discovery
// document; ID tokens returned alongside the code exchange are verified
// when present.
package oidc
