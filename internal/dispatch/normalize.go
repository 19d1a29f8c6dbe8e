package dispatch

import (
	"errors"
	"strings"
)

// ErrBadDestination marks addresses that fail normalization; the loop
// fails such rows before any transport call.
var ErrBadDestination = errors.New("destination failed normalization")

// Normalize reduces a destination address to canonical numeric form:
// digits only, prefixed with the domestic country code. Idempotent.
func Normalize(raw, countryPrefix string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return "", ErrBadDestination
	}
	if !strings.HasPrefix(digits, countryPrefix) {
		digits = countryPrefix + digits
	}
	return digits, nil
}
