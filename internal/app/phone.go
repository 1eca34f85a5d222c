package app

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPhone is returned when a phone value has no usable digits.
var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhoneNumber turns a user-entered phone value into international form.
// It is a heuristic, not an E.164 validator: the checks run in order and the
// first that matches wins.
//
//   - "+..." is kept as-is
//   - "00..." becomes "+..."
//   - countryCode followed by a full national number gets a "+"
//   - a bare national number (after dropping leading zeros) gets "+<countryCode>"
//   - anything else is returned as "+<digits>"
func NormalizePhoneNumber(raw, countryCode string, nationalLength int) (string, error) {
	trimmed := strings.TrimSpace(raw)

	var b strings.Builder
	for i, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	if strings.TrimPrefix(cleaned, "+") == "" {
		return "", fmt.Errorf("%w: %q has no digits", ErrInvalidPhone, raw)
	}

	switch {
	case strings.HasPrefix(cleaned, "+"):
		return cleaned, nil
	case strings.HasPrefix(cleaned, "00"):
		if strings.Trim(cleaned[2:], "0") == "" {
			return "", fmt.Errorf("%w: %q has no number after international prefix", ErrInvalidPhone, raw)
		}
		return "+" + cleaned[2:], nil
	case countryCode != "" && len(cleaned) == len(countryCode)+nationalLength && strings.HasPrefix(cleaned, countryCode):
		return "+" + cleaned, nil
	}

	local := strings.TrimLeft(cleaned, "0")
	if local == "" {
		return "", fmt.Errorf("%w: %q has only zeros", ErrInvalidPhone, raw)
	}
	if countryCode != "" && len(local) == nationalLength {
		return "+" + countryCode + local, nil
	}
	return "+" + local, nil
}
