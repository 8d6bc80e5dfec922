// Package security provides the hardening primitives used across the login
// gateway: token-at-rest encryption, per-IP rate limiting, audit logging,
// security response headers, request IDs, and clock-skew-aware expiry
// checks.
package security
