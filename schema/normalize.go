package schema

import "strings"

// ValidateSessionID ensures a session id is a 26 character ULID string
// (Crockford base32, upper-case) with no normalization.
func ValidateSessionID(id SessionID) error {
	raw := string(id)
	if len(raw) != 26 {
		return ErrInvalidSession
	}
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			continue
		}
		if r >= 'A' && r <= 'Z' && r != 'I' && r != 'L' && r != 'O' && r != 'U' {
			continue
		}
		return ErrInvalidSession
	}
	return nil
}

// SplitOutput splits raw run output into display lines on "\n".
func SplitOutput(output string) []string {
	return strings.Split(output, "\n")
}
