package userdir

import (
	"context"
	"fmt"

	"github.com/MrEthical07/adminAuth/credential"
)

// Memory is an immutable in-process directory.
type Memory struct {
	byEmail map[string]User
	byID    map[string]User
}

// NewMemory indexes users. Emails and ids must be unique.
func NewMemory(users ...User) (*Memory, error) {
	m := &Memory{
		byEmail: make(map[string]User, len(users)),
		byID:    make(map[string]User, len(users)),
	}
	for _, u := range users {
		if _, dup := m.byEmail[u.Email]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEmail, u.Email)
		}
		if _, dup := m.byID[u.ID]; dup {
			return nil, fmt.Errorf("duplicate user id: %s", u.ID)
		}
		m.byEmail[u.Email] = u
		m.byID[u.ID] = u
	}
	return m, nil
}

// Demo returns the two built-in accounts:
//
//	admin@example.com / Admin@123 (admin)
//	user@example.com  / User@123  (user)
func Demo() *Memory {
	m, _ := NewMemory(
		User{
			ID:           "1",
			Email:        "admin@example.com",
			Name:         "Admin User",
			Role:         RoleAdmin,
			Avatar:       "https://via.placeholder.com/100",
			PasswordHash: credential.Hash("Admin@123"),
		},
		User{
			ID:           "2",
			Email:        "user@example.com",
			Name:         "Regular User",
			Role:         RoleUser,
			Avatar:       "https://via.placeholder.com/100",
			PasswordHash: credential.Hash("User@123"),
		},
	)
	return m
}

func (m *Memory) FindByEmail(_ context.Context, email string) (User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) FindByID(_ context.Context, id string) (User, error) {
	u, ok := m.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// Len returns the number of accounts.
func (m *Memory) Len() int {
	return len(m.byID)
}
