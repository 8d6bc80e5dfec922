package flow

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a login flow error with its HTTP mapping. The Code and
// Description fields are safe to serialize to clients; provider-reported
// codes are carried verbatim so callers can distinguish, say, a user
// cancelling consent from a stale authorization code.
type Error struct {
	// Code is a stable machine-readable error code.
	Code string `json:"error"`

	// Description is a human-readable description.
	Description string `json:"error_description,omitempty"`

	// Status is the HTTP status code this error maps to.
	Status int `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Callback and initiation errors.
var (
	// ErrMalformedCallback covers callbacks missing the code or state
	// parameter.
	ErrMalformedCallback = func(desc string) *Error {
		return &Error{Code: "malformed_callback", Description: desc, Status: http.StatusBadRequest}
	}

	// ErrProviderDenied carries a provider error callback (e.g. the user
	// denied consent). The provider's error code is preserved verbatim.
	ErrProviderDenied = func(code, desc string) *Error {
		if code == "" {
			code = "access_denied"
		}
		return &Error{Code: code, Description: desc, Status: http.StatusBadRequest}
	}

	// ErrUnknownOrExpiredState covers states that were never issued,
	// already consumed, or expired. Deliberately one code for all three.
	ErrUnknownOrExpiredState = func() *Error {
		return &Error{
			Code:        "invalid_state",
			Description: "state is unknown, expired, or already used",
			Status:      http.StatusBadRequest,
		}
	}

	// ErrStateCollision reports a random state token colliding with a
	// pending one. Practically unreachable with 256-bit states.
	ErrStateCollision = func() *Error {
		return &Error{
			Code:        "state_collision",
			Description: "failed to register login state",
			Status:      http.StatusInternalServerError,
		}
	}

	// ErrPKCEGeneration reports a failure to produce PKCE material.
	ErrPKCEGeneration = func(desc string) *Error {
		return &Error{Code: "pkce_generation_failed", Description: desc, Status: http.StatusInternalServerError}
	}

	// ErrTokenExchangeRejected carries a structured rejection from the
	// token endpoint, code preserved verbatim.
	ErrTokenExchangeRejected = func(code, desc string) *Error {
		if code == "" {
			code = "invalid_grant"
		}
		return &Error{Code: code, Description: desc, Status: http.StatusBadRequest}
	}

	// ErrTokenExchangeUnavailable covers transport failures and
	// unstructured provider faults during code exchange.
	ErrTokenExchangeUnavailable = func(desc string) *Error {
		return &Error{Code: "token_exchange_unavailable", Description: desc, Status: http.StatusInternalServerError}
	}
)

// Session-bound operation errors.
var (
	// ErrNoSession covers a missing cookie, an unknown session identifier,
	// and an expired session. One code for all three.
	ErrNoSession = func() *Error {
		return &Error{
			Code:        "no_session",
			Description: "no active session",
			Status:      http.StatusUnauthorized,
		}
	}

	// ErrTokenInvalid reports that the provider rejected the session's
	// access token. The session itself is left intact.
	ErrTokenInvalid = func(code, desc string) *Error {
		if code == "" {
			code = "invalid_token"
		}
		return &Error{Code: code, Description: desc, Status: http.StatusUnauthorized}
	}

	// ErrProviderUnavailable covers transport failures on session-bound
	// provider calls.
	ErrProviderUnavailable = func(desc string) *Error {
		return &Error{Code: "provider_unavailable", Description: desc, Status: http.StatusBadGateway}
	}

	// ErrNoRefreshToken reports that the session holds no refresh token.
	ErrNoRefreshToken = func() *Error {
		return &Error{
			Code:        "no_refresh_token",
			Description: "session has no refresh token",
			Status:      http.StatusBadRequest,
		}
	}

	// ErrRefreshNotSupported reports that the configured provider or
	// session store cannot perform a refresh.
	ErrRefreshNotSupported = func(desc string) *Error {
		return &Error{Code: "refresh_not_supported", Description: desc, Status: http.StatusBadRequest}
	}

	// ErrInternal is the catch-all for storage faults.
	ErrInternal = func(desc string) *Error {
		return &Error{Code: "internal_error", Description: desc, Status: http.StatusInternalServerError}
	}
)

// AsError unwraps err into a flow error, if it is one.
func AsError(err error) (*Error, bool) {
	var ferr *Error
	if errors.As(err, &ferr) {
		return ferr, true
	}
	return nil, false
}
