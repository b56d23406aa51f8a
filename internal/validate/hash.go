package validate

import (
	"errors"
	"regexp"
)

// Hash validation errors
var (
	ErrInvalidHash = errors.New("invalid content hash: must be 64 lowercase hex characters")
)

// hashPattern matches a full SHA-256 hash in lowercase hex.
var hashPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// ObjectHash validates that s is a well-formed content hash.
func ObjectHash(s string) error {
	if !hashPattern.MatchString(s) {
		return ErrInvalidHash
	}
	return nil
}
