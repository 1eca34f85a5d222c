// Package kid generates and verifies KID (kundeidentifikasjon) payment
// references: a run of base digits followed by a single mod11 or mod10 check digit.
package kid

import (
	"fmt"
	"strings"
)

// Mod11Invalid is returned by Mod11CheckDigit when the mod11 scheme cannot
// produce a single check digit for the input. Callers fall back to mod10.
const Mod11Invalid = 10

var mod11Weights = []int{2, 3, 4, 5, 6, 7}

// InvalidInputError reports a KID base or checksum body that is empty or
// contains characters other than decimal digits.
type InvalidInputError struct {
	Input  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid KID input %q: %s", e.Input, e.Reason)
}

func validateDigits(digits string) error {
	if digits == "" {
		return &InvalidInputError{Input: digits, Reason: "no digits"}
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return &InvalidInputError{Input: digits, Reason: fmt.Sprintf("non-digit character %q", r)}
		}
	}
	return nil
}

// Mod10CheckDigit computes the Luhn check digit for digits.
func Mod10CheckDigit(digits string) (int, error) {
	if err := validateDigits(digits); err != nil {
		return 0, err
	}

	sum := 0
	double := true // the rightmost body digit is doubled
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d >= 10 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10, nil
}

// Mod11CheckDigit computes the weighted mod11 check digit for digits using the
// weights 2..7 from the right. A result of Mod11Invalid means the scheme does
// not apply to this input.
func Mod11CheckDigit(digits string) (int, error) {
	if err := validateDigits(digits); err != nil {
		return 0, err
	}

	sum := 0
	for i, pos := len(digits)-1, 0; i >= 0; i, pos = i-1, pos+1 {
		sum += int(digits[i]-'0') * mod11Weights[pos%len(mod11Weights)]
	}
	return (11 - sum%11) % 11, nil
}

// Normalize strips every non-digit character from base.
func Normalize(base string) string {
	var b strings.Builder
	b.Grow(len(base))
	for _, r := range base {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Generate builds a KID from base: the normalized digits of base followed by a
// mod11 check digit, or a mod10 check digit when mod11 is invalid for the input.
func Generate(base string) (string, error) {
	digits := Normalize(base)
	if digits == "" {
		return "", &InvalidInputError{Input: base, Reason: "no digits after normalization"}
	}

	check, err := checkDigit(digits)
	if err != nil {
		return "", err
	}
	return digits + string(rune('0'+check)), nil
}

// Verify reports whether kid carries the check digit Generate would have
// appended to its body.
func Verify(kid string) (bool, error) {
	if len(kid) < 2 {
		return false, &InvalidInputError{Input: kid, Reason: "too short"}
	}
	if err := validateDigits(kid); err != nil {
		return false, err
	}

	body, last := kid[:len(kid)-1], int(kid[len(kid)-1]-'0')
	check, err := checkDigit(body)
	if err != nil {
		return false, err
	}
	return check == last, nil
}

func checkDigit(digits string) (int, error) {
	check, err := Mod11CheckDigit(digits)
	if err != nil {
		return 0, err
	}
	if check != Mod11Invalid {
		return check, nil
	}
	return Mod10CheckDigit(digits)
}
