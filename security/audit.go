package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection. Session and
// state identifiers are hashed before logging so audit trails can be
// correlated without exposing live credentials.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event.
type Event struct {
	Type      string
	SessionID string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed identifiers.
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"session_id_hash", hashForLogging(event.SessionID),
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogLoginStarted logs the start of a login flow.
func (a *Auditor) LogLoginStarted(scope string) {
	a.LogEvent(Event{
		Type: "login_started",
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogCallbackRejected logs a rejected provider callback.
func (a *Auditor) LogCallbackRejected(reason string) {
	a.LogEvent(Event{
		Type: "callback_rejected",
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogSessionCreated logs successful completion of a login flow.
func (a *Auditor) LogSessionCreated(sessionID, scope string) {
	a.LogEvent(Event{
		Type:      "session_created",
		SessionID: sessionID,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogSessionRevoked logs session destruction, recording whether the remote
// revocation at the provider also succeeded.
func (a *Auditor) LogSessionRevoked(sessionID string, remoteRevoked bool) {
	a.LogEvent(Event{
		Type:      "session_revoked",
		SessionID: sessionID,
		Details: map[string]any{
			"remote_revoked": remoteRevoked,
		},
	})
}

// hashForLogging returns a short SHA-256 prefix of the value, or "" for
// empty input. Enough to correlate events, useless for replay.
func hashForLogging(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:16]
}
