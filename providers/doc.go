// Package providers defines the identity provider client consumed by the
// flow coordinator. The coordinator never talks to the network itself; all
// four provider operations (building the authorization URL, exchanging an
// authorization code, fetching userinfo, revoking a token) go through the
// Provider interface.
//
// The oidc subpackage implements the interface against any OpenID Connect
// provider via issuer discovery; the mock subpackage provides a
// function-field test double.
package providers
