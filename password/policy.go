package password

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MinLength is the default minimum password length in characters.
const MinLength = 8

const symbols = "!@#$%^&*()_+-=[]{};':\"\\|,.<>/?"

// Strength is a coarse password quality rating.
type Strength string

const (
	StrengthWeak   Strength = "weak"
	StrengthMedium Strength = "medium"
	StrengthStrong Strength = "strong"
)

var commonPasswords = map[string]struct{}{
	"password": {}, "123456": {}, "12345678": {}, "qwerty": {}, "abc123": {},
	"monkey": {}, "1234567": {}, "letmein": {}, "trustno1": {}, "dragon": {},
	"baseball": {}, "iloveyou": {}, "master": {}, "sunshine": {}, "ashley": {},
	"bailey": {}, "passw0rd": {}, "shadow": {}, "123123": {}, "654321": {},
	"admin": {}, "admin123": {}, "user123": {}, "password123": {},
}

// Policy describes the composition rules a password must satisfy.
type Policy struct {
	MinLength        int  `mapstructure:"min_length" validate:"gte=1"`
	RequireUppercase bool `mapstructure:"require_uppercase"`
	RequireLowercase bool `mapstructure:"require_lowercase"`
	RequireDigit     bool `mapstructure:"require_digit"`
	RequireSymbol    bool `mapstructure:"require_symbol"`
	DenyCommon       bool `mapstructure:"deny_common"`
}

// DefaultPolicy requires 8 characters from all four classes and rejects the
// common-password list.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:        MinLength,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireDigit:     true,
		RequireSymbol:    true,
		DenyCommon:       true,
	}
}

// PolicyResult is the outcome of checking a password against a Policy.
type PolicyResult struct {
	Valid    bool
	Errors   []string
	Strength Strength
}

// Validate checks password against the default policy.
func Validate(password string) PolicyResult {
	return DefaultPolicy().Check(password)
}

// Check reports every rule password breaks, in a stable order, together with
// its strength rating.
func (p Policy) Check(password string) PolicyResult {
	var errs []string
	c := classify(password)

	if utf8.RuneCountInString(password) < p.MinLength {
		errs = append(errs, fmt.Sprintf("Password must be at least %d characters long", p.MinLength))
	}
	if p.RequireUppercase && !c.upper {
		errs = append(errs, "Password must contain at least one uppercase letter")
	}
	if p.RequireLowercase && !c.lower {
		errs = append(errs, "Password must contain at least one lowercase letter")
	}
	if p.RequireDigit && !c.digit {
		errs = append(errs, "Password must contain at least one number")
	}
	if p.RequireSymbol && !c.symbol {
		errs = append(errs, "Password must contain at least one special character")
	}
	if p.DenyCommon && IsCommon(password) {
		errs = append(errs, "This password is too common. Please choose a stronger password")
	}

	strength := StrengthWeak
	switch score := Score(password); {
	case score >= 4:
		strength = StrengthStrong
	case score >= 3:
		strength = StrengthMedium
	}

	return PolicyResult{Valid: len(errs) == 0, Errors: errs, Strength: strength}
}

// IsCommon reports whether password appears on the deny-list, ignoring case.
func IsCommon(password string) bool {
	_, ok := commonPasswords[strings.ToLower(password)]
	return ok
}

// Score rates password from 0 upward: one point per character class and for
// lengths of 12 and 16, minus a point each for runs of three identical
// characters, letters only, or digits only.
func Score(password string) int {
	c := classify(password)
	n := utf8.RuneCountInString(password)

	score := 0
	if n >= 12 {
		score++
	}
	if n >= 16 {
		score++
	}
	for _, ok := range []bool{c.lower, c.upper, c.digit, c.symbol} {
		if ok {
			score++
		}
	}

	if hasRun(password, 3) {
		score--
	}
	if n > 0 && c.lettersOnly {
		score--
	}
	if n > 0 && c.digitsOnly {
		score--
	}

	if score < 0 {
		return 0
	}
	return score
}

// Indicator maps Score onto a display label: Weak, Medium or Strong.
func Indicator(password string) (int, string) {
	score := Score(password)
	switch {
	case score <= 2:
		return score, "Weak"
	case score <= 4:
		return score, "Medium"
	default:
		return score, "Strong"
	}
}

type classes struct {
	upper, lower, digit, symbol bool
	lettersOnly, digitsOnly     bool
}

func classify(password string) classes {
	c := classes{lettersOnly: true, digitsOnly: true}
	for _, r := range password {
		isLetter := false
		switch {
		case r >= 'A' && r <= 'Z':
			c.upper, isLetter = true, true
		case r >= 'a' && r <= 'z':
			c.lower, isLetter = true, true
		case r >= '0' && r <= '9':
			c.digit = true
		case strings.ContainsRune(symbols, r):
			c.symbol = true
		}
		if !isLetter {
			c.lettersOnly = false
		}
		if r < '0' || r > '9' {
			c.digitsOnly = false
		}
	}
	return c
}

func hasRun(s string, n int) bool {
	var prev rune
	run := 0
	for i, r := range s {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run >= n {
			return true
		}
		prev = r
	}
	return false
}
