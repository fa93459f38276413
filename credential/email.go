package credential

import (
	"regexp"
	"strings"
)

// MaxEmailLength is the longest address IsValidEmail accepts.
const MaxEmailLength = 254

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsValidEmail reports whether s has the shape local@domain.tld: exactly one
// '@', a non-empty local part, a dot in the domain, no whitespace, and at most
// MaxEmailLength bytes.
func IsValidEmail(s string) bool {
	if s == "" || len(s) > MaxEmailLength {
		return false
	}
	return emailPattern.MatchString(s)
}

var sanitizer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// SanitizeInput escapes the characters that are significant in HTML markup so
// user-supplied strings can be echoed into a page.
func SanitizeInput(s string) string {
	return sanitizer.Replace(s)
}
