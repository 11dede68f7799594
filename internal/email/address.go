package email

import (
	"errors"
	"net/mail"
	"strings"
)

// maxAddressLen is the longest path allowed by RFC 5321.
const maxAddressLen = 254

// ErrInvalidEmail indicates an email address is not valid.
var ErrInvalidEmail = errors.New("invalid email address")

// Address is a lowercase email address without display name. Members
// and credentials are matched on it, so "Ann@Example.com" and
// "ann@example.com" refer to the same person.
type Address string

// ParseAddress checks that raw is shaped like a bare email address and
// normalizes it. It does not check that the address exists.
func ParseAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) > maxAddressLen {
		return "", ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", ErrInvalidEmail
	}

	// Reject names and comments such as "Ann <ann@example.com>(comment)".
	if addr.Address != trimmed {
		return "", ErrInvalidEmail
	}

	return Address(strings.ToLower(addr.Address)), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	addr, err := ParseAddress(string(text))
	if err != nil {
		return err
	}

	*a = addr

	return nil
}
