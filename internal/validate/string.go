// Package validate provides centralized input validation utilities for
// ipcore managers: actor identifiers, content hashes, and bounded strings.
package validate

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// String validation errors
var (
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrEmpty             = errors.New("string is empty")
)

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength      int            // Minimum length (0 = no minimum)
	MaxLength      int            // Maximum length (0 = no maximum)
	AllowedPattern *regexp.Regexp // Optional regex pattern for allowed characters
	AllowEmpty     bool           // Whether empty strings are allowed
	TrimSpace      bool           // Whether to trim whitespace before validation
}

// String validates a string against the given constraints.
// Returns the validated (and optionally trimmed) string and an error if validation fails.
func String(s string, constraints StringConstraints) (string, error) {
	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}

	if s == "" {
		if !constraints.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}

	// Character count, not byte count
	length := utf8.RuneCountInString(s)

	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", ErrStringTooShort
	}
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", ErrStringTooLong
	}

	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", ErrInvalidCharacters
	}

	return s, nil
}

// actorPattern covers the identifier forms accepted for actors: plain
// usernames, email-like handles, and DID-style identifiers.
var actorPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._@:\-]*$`)

// ActorID validates an actor identifier (creator, signer, voter).
func ActorID(s string) (string, error) {
	return String(s, StringConstraints{
		MinLength:      1,
		MaxLength:      256,
		AllowedPattern: actorPattern,
		TrimSpace:      true,
	})
}
