package providers

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a structured error reported by the identity provider (RFC 6749
// §5.2 error responses, RFC 6750 bearer challenges). Transport failures and
// timeouts are NOT represented as *Error; they surface as plain wrapped
// errors so callers can distinguish "the provider said no" from "the
// provider could not be reached".
type Error struct {
	// Code is the provider's error code, e.g. "invalid_grant".
	Code string

	// Description is the provider's human-readable description.
	Description string

	// StatusCode is the HTTP status of the provider response, when known.
	StatusCode int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// AsError unwraps err into a structured provider error, if it is one.
func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// IsAuthError reports whether err is a structured provider error indicating
// the presented token was rejected (as opposed to a malformed request or a
// provider-side fault).
func IsAuthError(err error) bool {
	perr, ok := AsError(err)
	if !ok {
		return false
	}
	if perr.StatusCode == http.StatusUnauthorized || perr.StatusCode == http.StatusForbidden {
		return true
	}
	return perr.Code == "invalid_token" || perr.Code == "insufficient_scope"
}
