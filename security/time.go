package security

import "time"

const (
	// DefaultClockSkewGracePeriod is the grace applied to expiry checks so
	// minor clock drift between this process and the identity provider does
	// not produce false expirations. Records and sessions remain usable for
	// up to this long past their nominal expiry.
	DefaultClockSkewGracePeriod = 5 * time.Second
)

// IsExpired reports whether a deadline has passed, applying the default
// clock skew grace period. A zero deadline means no expiry.
func IsExpired(expiresAt time.Time) bool {
	return IsExpiredWithGracePeriod(expiresAt, DefaultClockSkewGracePeriod)
}

// IsExpiredWithGracePeriod reports whether a deadline has passed by more
// than the given grace period. A zero deadline means no expiry.
func IsExpiredWithGracePeriod(expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().After(expiresAt.Add(gracePeriod))
}
