package storage

import (
	"context"
	"errors"
	"time"

	"github.com/kerliix/oauth-bff/providers"
)

// Sentinel errors returned by store implementations. Callers compare with
// errors.Is; implementations may wrap them with additional context.
var (
	// ErrDuplicateState indicates a correlation record already exists for a
	// state token. With cryptographically random states this is negligible
	// and treated as fatal to the request, never retried.
	ErrDuplicateState = errors.New("state already registered")

	// ErrStateNotFound indicates a state token that was never registered,
	// already consumed, or expired. The three cases are deliberately
	// indistinguishable to callers.
	ErrStateNotFound = errors.New("state not found or expired")

	// ErrSessionNotFound indicates an unknown or expired session identifier.
	ErrSessionNotFound = errors.New("session not found")
)

// PKCERecord correlates a CSRF state token with the PKCE code verifier
// generated at login initiation. Records are single-use: a successful
// TakeState removes the record so a replayed callback cannot recover the
// verifier a second time.
type PKCERecord struct {
	State        string
	CodeVerifier string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Session binds an opaque identifier (carried by the browser as a cookie
// value) to the token material obtained from the identity provider. The
// identifier is the only thing the client ever holds; token material never
// leaves the server except through the introspection endpoint.
type Session struct {
	ID        string
	Token     *providers.TokenMaterial
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CorrelationStore is the ephemeral, single-use mapping from a CSRF state
// token to its PKCE code verifier.
// All methods accept context.Context for tracing and cancellation.
type CorrelationStore interface {
	// PutState registers a new correlation record.
	// Returns ErrDuplicateState if the state token is already present.
	PutState(ctx context.Context, rec *PKCERecord) error

	// TakeState atomically retrieves and removes the record for a state
	// token. At most one caller may ever succeed for a given state, even
	// under concurrent duplicate callback delivery.
	// Returns ErrStateNotFound if the record is absent, consumed, or expired.
	TakeState(ctx context.Context, state string) (*PKCERecord, error)
}

// SessionStore maps opaque session identifiers to token material.
// All methods accept context.Context for tracing and cancellation.
type SessionStore interface {
	// CreateSession stores the token material under a freshly generated
	// unguessable identifier and returns that identifier.
	CreateSession(ctx context.Context, token *providers.TokenMaterial) (string, error)

	// GetSession retrieves a session by identifier.
	// Returns ErrSessionNotFound if absent or expired.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// DeleteSession removes a session. Idempotent: deleting an absent
	// session is not an error.
	DeleteSession(ctx context.Context, sessionID string) error
}

// SessionRefresher is implemented by session stores that can replace a
// session's token material in place, keeping the session identifier stable.
// This is the extension point for the refresh grant; it is optional so the
// core SessionStore contract stays unchanged.
type SessionRefresher interface {
	// ReplaceSessionToken swaps the token material of an existing session.
	// Returns ErrSessionNotFound if the session is absent or expired.
	ReplaceSessionToken(ctx context.Context, sessionID string, token *providers.TokenMaterial) (*Session, error)
}
