package userdir

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no account matches the lookup key.
var ErrNotFound = errors.New("user not found")

// ErrDuplicateEmail is returned when a seed contains the same email twice.
var ErrDuplicateEmail = errors.New("duplicate user email")

// Role is an account's coarse permission level.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User is one account. Email is a unique, case-sensitive key.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         Role
	Avatar       string
	PasswordHash string
}

// Profile is the public projection of a User; it never carries the hash.
type Profile struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	Avatar string `json:"avatar,omitempty"`
}

// Profile drops the password hash.
func (u User) Profile() Profile {
	return Profile{
		ID:     u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
		Avatar: u.Avatar,
	}
}

// Directory looks accounts up by email or id.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
}
