package userdir

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/adminAuth/credential"
	"github.com/MrEthical07/adminAuth/password"
)

// SeedFile is the YAML layout accepted by [LoadYAML]:
//
//	users:
//	  - id: "1"
//	    email: admin@example.com
//	    name: Admin User
//	    role: admin
//	    password: Admin@123
type SeedFile struct {
	Users []SeedUser `yaml:"users"`
}

// SeedUser is one account in a seed file. Exactly one of Password and
// PasswordHash must be set; a plaintext Password must satisfy the policy.
// An empty ID gets a random UUID and an empty Role means "user".
type SeedUser struct {
	ID           string `yaml:"id"`
	Email        string `yaml:"email"`
	Name         string `yaml:"name"`
	Role         Role   `yaml:"role"`
	Avatar       string `yaml:"avatar"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
}

// LoadYAMLFile opens path and calls [LoadYAML].
func LoadYAMLFile(path string, policy password.Policy, hasher password.Hasher) (*Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadYAML(f, policy, hasher)
}

// LoadYAML parses a seed file, enforces policy on plaintext passwords and
// hashes them with hasher.
func LoadYAML(r io.Reader, policy password.Policy, hasher password.Hasher) (*Memory, error) {
	var seed SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("decode user seed: %w", err)
	}
	if len(seed.Users) == 0 {
		return nil, fmt.Errorf("user seed contains no users")
	}

	users := make([]User, 0, len(seed.Users))
	for i, su := range seed.Users {
		u, err := su.build(policy, hasher)
		if err != nil {
			return nil, fmt.Errorf("user seed entry %d: %w", i, err)
		}
		users = append(users, u)
	}
	return NewMemory(users...)
}

func (su SeedUser) build(policy password.Policy, hasher password.Hasher) (User, error) {
	if strings.TrimSpace(su.ID) == "" {
		su.ID = uuid.NewString()
	}
	if !credential.IsValidEmail(su.Email) {
		return User{}, fmt.Errorf("invalid email %q", su.Email)
	}
	if su.Role == "" {
		su.Role = RoleUser
	}
	if !su.Role.Valid() {
		return User{}, fmt.Errorf("unknown role %q", su.Role)
	}

	hash := su.PasswordHash
	switch {
	case su.Password != "" && su.PasswordHash != "":
		return User{}, fmt.Errorf("set only one of password and password_hash")
	case su.Password != "":
		res := policy.Check(su.Password)
		if !res.Valid {
			return User{}, fmt.Errorf("password rejected: %s", strings.Join(res.Errors, "; "))
		}
		var err error
		if hash, err = hasher.Hash(su.Password); err != nil {
			return User{}, err
		}
	case hash == "":
		return User{}, fmt.Errorf("password or password_hash is required")
	}

	return User{
		ID:           su.ID,
		Email:        su.Email,
		Name:         su.Name,
		Role:         su.Role,
		Avatar:       su.Avatar,
		PasswordHash: hash,
	}, nil
}
