package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// MaxCommentLength bounds approver comments
const MaxCommentLength = 2000

var (
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	identifier   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:@-]{0,127}$`)
)

// ValidateAmount validates an expense amount: positive, whole cents.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive: %s", amount.String())
	}
	if !amount.Round(2).Equal(amount) {
		return fmt.Errorf("amount has more than two decimal places: %s", amount.String())
	}
	return nil
}

// ValidateID checks that an identifier is non-empty and printable.
func ValidateID(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if !identifier.MatchString(value) {
		return fmt.Errorf("%s has invalid format: %q", field, value)
	}
	return nil
}

// SanitizeString removes control characters other than tab and newlines
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}

// SanitizeComment trims and truncates free text entered by approvers
func SanitizeComment(s string) string {
	s = strings.TrimSpace(SanitizeString(s))
	if utf8.RuneCountInString(s) <= MaxCommentLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxCommentLength])
}
