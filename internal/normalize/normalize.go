// Package normalize produces the canonical forms of contact identifiers.
// Uniqueness checks and lookups always compare canonical forms.
package normalize

import (
	"errors"
	"net/mail"
	"strings"
)

var (
	// ErrInvalidEmail is returned when the input is not a single bare address.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPhone is returned when the input does not contain 7 to 15 digits.
	ErrInvalidPhone = errors.New("invalid phone number")
)

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// Email trims and lower-cases an address and checks it parses as one bare address.
func Email(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || len(email) > 254 {
		return "", ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}

	return email, nil
}

// Phone strips separators and keeps a single leading '+'.
// "+1 (555) 010-9999" becomes "+15550109999".
func Phone(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalidPhone
	}

	var b strings.Builder
	b.Grow(len(s))

	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", ErrInvalidPhone
		}
	}

	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return "", ErrInvalidPhone
	}

	return b.String(), nil
}
