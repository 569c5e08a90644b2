package validator

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

var digitsOnlyRegex = regexp.MustCompile(`^[0-9]+$`)

// Required validates that a string is not empty after trimming whitespace.
func Required(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: ValidationError{Field: field, Message: "is required"},
	}
}

// MinLen validates a minimum string length in bytes.
func MinLen(field, value string, min int) Rule {
	return Rule{
		Check: func() bool { return len(value) >= min },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be at least %d characters", min)},
	}
}

// ValidEmail validates that a string is a plausible email address for web use.
func ValidEmail(field, value string) Rule {
	return Rule{
		Check: func() bool {
			if strings.TrimSpace(value) == "" {
				return false
			}

			addr, err := mail.ParseAddress(value)
			if err != nil {
				return false
			}

			// mail.ParseAddress accepts addresses without a dot in the
			// domain; require one for typical web signups.
			parts := strings.Split(addr.Address, "@")
			if len(parts) != 2 || parts[0] == "" {
				return false
			}
			domain := parts[1]
			if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
				return false
			}
			for part := range strings.SplitSeq(domain, ".") {
				if part == "" {
					return false
				}
			}
			return true
		},
		Error: ValidationError{Field: field, Message: "must be a valid email address"},
	}
}

// Digits validates that a string is exactly length numeric digits.
// Used for one-time codes, which must be checked for shape before any
// cryptographic verification is attempted.
func Digits(field, value string, length int) Rule {
	return Rule{
		Check: func() bool {
			return len(value) == length && digitsOnlyRegex.MatchString(value)
		},
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be %d digits", length)},
	}
}

// Match validates that two values are identical, e.g. password confirmation.
func Match(field, value, other string) Rule {
	return Rule{
		Check: func() bool { return value == other },
		Error: ValidationError{Field: field, Message: "does not match"},
	}
}
