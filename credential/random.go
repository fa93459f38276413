package credential

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	// DefaultTokenBytes is the entropy used when GenerateToken receives n <= 0.
	DefaultTokenBytes = 32

	// MinOTPDigits and MaxOTPDigits bound GenerateOTP.
	MinOTPDigits = 4
	MaxOTPDigits = 10

	csrfTokenBytes = 32
)

// ErrInvalidOTPDigits is returned by GenerateOTP for an out-of-range length.
var ErrInvalidOTPDigits = errors.New("invalid otp digits")

// GenerateToken returns n bytes from the CSPRNG as lowercase hex (2n chars).
func GenerateToken(n int) (string, error) {
	if n <= 0 {
		n = DefaultTokenBytes
	}

	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// GenerateCSRFToken returns a fresh 32-byte hex token for form protection.
func GenerateCSRFToken() (string, error) {
	return GenerateToken(csrfTokenBytes)
}

// GenerateOTP returns a uniformly distributed decimal code of exactly digits
// characters, left-padded with zeros.
func GenerateOTP(digits int) (string, error) {
	if digits < MinOTPDigits || digits > MaxOTPDigits {
		return "", ErrInvalidOTPDigits
	}

	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}

	code := n.String()
	if len(code) < digits {
		code = strings.Repeat("0", digits-len(code)) + code
	}
	if len(code) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return code, nil
}
