// Package flow implements the login flow coordinator: initiation of the
// authorization code flow with PKCE, completion at the provider callback,
// and the session-bound operations (userinfo, revocation, introspection,
// refresh) that run against an established session.
//
// The coordinator owns the ordering guarantees of the callback: parameter
// validation, provider error surfacing, single-use state consumption and
// code exchange happen in a fixed sequence so a replayed or forged callback
// fails before any provider round trip.
package flow
