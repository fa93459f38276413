package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/adminAuth/credential"
)

// MemoryStore keeps sessions in process. One RWMutex guards both the session
// map and the user index.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]map[string]struct{}
	cfg      Config
	now      func() time.Time
}

// NewMemoryStore returns an empty store. now defaults to time.Now.
func NewMemoryStore(cfg Config, now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]struct{}),
		cfg:      cfg.withDefaults(),
		now:      now,
	}
}

// Create mints a token for userID and indexes it.
func (m *MemoryStore) Create(_ context.Context, userID string, meta Metadata) (string, error) {
	token, err := credential.GenerateToken(m.cfg.TokenBytes)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sessions[token] = &Session{
		Token:        token,
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(m.cfg.TokenLifetime),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	}
	set, ok := m.byUser[userID]
	if !ok {
		set = make(map[string]struct{})
		m.byUser[userID] = set
	}
	set[token] = struct{}{}
	return token, nil
}

// Validate checks token, evicting it when expired or idle and touching its
// activity when live.
func (m *MemoryStore) Validate(_ context.Context, token string) (Validation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return Validation{Reason: ReasonNotFound}, nil
	}

	now := m.now()
	if reason := s.Check(now, m.cfg.IdleTimeout); reason != ReasonNone {
		m.removeLocked(token)
		return Validation{Reason: reason}, nil
	}

	s.LastActivity = now
	return Validation{Valid: true, UserID: s.UserID}, nil
}

// Refresh extends a live session's absolute expiry to now+TokenLifetime.
// Unknown or already invalid tokens return false.
func (m *MemoryStore) Refresh(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return false, nil
	}
	now := m.now()
	if s.Check(now, m.cfg.IdleTimeout) != ReasonNone {
		m.removeLocked(token)
		return false, nil
	}

	s.ExpiresAt = now.Add(m.cfg.TokenLifetime)
	s.LastActivity = now
	return true, nil
}

// Get returns a copy of the session without touching it.
func (m *MemoryStore) Get(_ context.Context, token string) (Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[token]
	if !ok {
		return Session{}, false, nil
	}
	return *s, true, nil
}

// Remove evicts token. Removing an unknown token is a no-op.
func (m *MemoryStore) Remove(_ context.Context, token string) error {
	m.mu.Lock()
	m.removeLocked(token)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) removeLocked(token string) bool {
	s, ok := m.sessions[token]
	if !ok {
		return false
	}
	delete(m.sessions, token)

	if set, ok := m.byUser[s.UserID]; ok {
		delete(set, token)
		if len(set) == 0 {
			delete(m.byUser, s.UserID)
		}
	}
	return true
}

// RemoveAllForUser evicts every session indexed under userID.
func (m *MemoryStore) RemoveAllForUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.byUser[userID]
	n := 0
	for token := range set {
		delete(m.sessions, token)
		n++
	}
	delete(m.byUser, userID)
	return n, nil
}

// ListForUser returns copies of userID's live sessions, oldest first.
func (m *MemoryStore) ListForUser(_ context.Context, userID string) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	out := make([]Session, 0, len(m.byUser[userID]))
	for token := range m.byUser[userID] {
		s, ok := m.sessions[token]
		if !ok || s.Check(now, m.cfg.IdleTimeout) != ReasonNone {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Cleanup evicts expired and idle sessions. Tokens are collected under a read
// lock and re-checked under the write lock, so a session validated or
// refreshed in between survives.
func (m *MemoryStore) Cleanup(_ context.Context) (int, error) {
	m.mu.RLock()
	now := m.now()
	stale := make([]string, 0)
	for token, s := range m.sessions {
		if s.Check(now, m.cfg.IdleTimeout) != ReasonNone {
			stale = append(stale, token)
		}
	}
	m.mu.RUnlock()

	if len(stale) == 0 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now = m.now()
	removed := 0
	for _, token := range stale {
		s, ok := m.sessions[token]
		if !ok || s.Check(now, m.cfg.IdleTimeout) == ReasonNone {
			continue
		}
		if m.removeLocked(token) {
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions and indexed users.
func (m *MemoryStore) Len() (sessions, users int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), len(m.byUser)
}
