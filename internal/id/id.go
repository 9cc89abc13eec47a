package id

import (
	"encoding/hex"

	"github.com/google/uuid"
)

const maxLen = 128

// New returns a random (v4) job identifier as 32 lowercase hex characters.
func New() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// Valid reports whether s can be used as a job or step identifier. Valid
// identifiers are safe as a single storage path segment.
func Valid(s string) bool {
	if s == "" || len(s) > maxLen {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
