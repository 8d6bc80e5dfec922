// Package storage defines the store contracts used by the login flow
// coordinator: a single-use correlation store mapping CSRF state tokens to
// PKCE code verifiers, and a session store mapping opaque session
// identifiers to provider token material.
//
// The interfaces allow swapping the in-memory implementation (see the
// memory subpackage) for a durable backend without touching the flow
// coordinator.
package storage
