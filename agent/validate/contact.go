package validate

import (
	"errors"
	"regexp"
)

const contactDigits = 10

var (
	ErrContactDigits = errors.New("contact number must have exactly 10 digits")

	nonDigit = regexp.MustCompile(`\D`)
)

// Contact strips everything but digits and accepts exactly ten of them.
func Contact(raw string) (string, error) {
	digits := nonDigit.ReplaceAllString(raw, "")
	if len(digits) != contactDigits {
		return "", ErrContactDigits
	}
	return digits, nil
}
