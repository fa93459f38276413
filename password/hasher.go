package password

import (
	"errors"
	"strings"

	"github.com/MrEthical07/adminAuth/credential"
)

// ErrEmptyPassword is returned when hashing an empty secret.
var ErrEmptyPassword = errors.New("password must not be empty")

// Hasher hashes and verifies passwords. Implementations must be safe for
// concurrent use.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// SHA256 hashes passwords as lowercase hex SHA-256 digests.
type SHA256 struct{}

// Hash returns the hex digest of password.
func (SHA256) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	return credential.Hash(password), nil
}

// Verify recomputes the digest and compares it with encoded in constant time.
func (SHA256) Verify(password, encoded string) (bool, error) {
	return credential.SecureCompare(credential.Hash(password), strings.ToLower(encoded)), nil
}

// Detect picks a hasher able to verify encoded. PHC argon2id strings carry
// their own parameters, so any Argon2 instance can verify them.
func Detect(encoded string) Hasher {
	if strings.HasPrefix(encoded, "$"+algorithmID+"$") {
		return &Argon2{config: DefaultConfig()}
	}
	return SHA256{}
}
