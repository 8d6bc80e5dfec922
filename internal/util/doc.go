// Package util provides small helpers shared across the oauth-bff packages.
//
// The main export is SafeTruncate, used to shorten secrets (state tokens,
// session identifiers) before they appear in log output.
package util
