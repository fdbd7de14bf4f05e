package domain

import (
	"errors"
	"net/mail"
	"strings"
)

var (
	ErrInvalidAddress = errors.New("invalid email address")
	ErrAddressTooLong = errors.New("email address too long")
)

// MaxAddressLength is the RFC 5321 ceiling on a full address.
const MaxAddressLength = 254

// NormalizeAddress validates an email-like string and returns its canonical
// form: trimmed, lower-cased, stripped of envelope angle brackets. It is
// idempotent over its own output and is used for inbox creation input as
// well as both SMTP envelope addresses.
func NormalizeAddress(raw string) (string, error) {
	addr := strings.TrimSpace(raw)
	addr = strings.Trim(addr, "<>")
	addr = strings.ToLower(addr)
	if addr == "" {
		return "", ErrInvalidAddress
	}
	if len(addr) > MaxAddressLength {
		return "", ErrAddressTooLong
	}

	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return "", ErrInvalidAddress
	}
	// Reject display names and any other form that does not round-trip to
	// the bare address.
	if parsed.Address != addr {
		return "", ErrInvalidAddress
	}

	return addr, nil
}
