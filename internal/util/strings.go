package util

// SafeTruncate returns at most maxLen characters of s without panicking on
// short input. It is used when logging identifiers that must not appear in
// full (session IDs, state tokens).
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
