package rate

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process [Limiter]. The zero value is not usable; call
// [NewMemory].
type Memory struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
}

// NewMemory returns an empty limiter reading time from now (time.Now when nil).
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		entries: make(map[string]Entry),
		now:     now,
	}
}

// Allow counts this call against key and denies the call that reaches the limit.
func (m *Memory) Allow(_ context.Context, key string, p Policy) (Decision, error) {
	return m.apply(key, p, modeAllow)
}

// Admit checks key without counting the call.
func (m *Memory) Admit(_ context.Context, key string, p Policy) (Decision, error) {
	return m.apply(key, p, modeAdmit)
}

// RecordFailure counts one failure against key and locks it when the count
// reaches p.MaxAttempts.
func (m *Memory) RecordFailure(_ context.Context, key string, p Policy) (Decision, error) {
	return m.apply(key, p, modeFailure)
}

func (m *Memory) apply(key string, p Policy, md mode) (Decision, error) {
	if !p.valid() {
		return Decision{}, ErrInvalidPolicy
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.entries[key]
	next, d, keep := step(e, exists, m.now(), p, md)
	if keep {
		m.entries[key] = next
	} else {
		delete(m.entries, key)
	}
	return d, nil
}

// Reset forgets key.
func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the stored entry.
func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	m.mu.Unlock()
	return e, ok, nil
}

// Remaining returns how many attempts key has left before it locks.
func (m *Memory) Remaining(ctx context.Context, key string, maxAttempts int) (int, error) {
	e, ok, _ := m.Get(ctx, key)
	if !ok {
		return maxAttempts, nil
	}
	return remaining(e.Attempts, maxAttempts), nil
}

// TimeUntilUnlock returns the time left on key's lock, or zero.
func (m *Memory) TimeUntilUnlock(ctx context.Context, key string) (time.Duration, error) {
	e, ok, _ := m.Get(ctx, key)
	now := m.now()
	if !ok || !e.Locked(now) {
		return 0, nil
	}
	return e.LockedUntil.Sub(now), nil
}

// IsLocked reports whether key is currently locked.
func (m *Memory) IsLocked(ctx context.Context, key string) (bool, error) {
	e, ok, _ := m.Get(ctx, key)
	return ok && e.Locked(m.now()), nil
}

// Cleanup purges unlocked entries whose last attempt is older than retention.
// Candidates are collected first and re-checked under the lock before removal,
// so an entry touched after the scan started survives.
func (m *Memory) Cleanup(_ context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}

	m.mu.Lock()
	now := m.now()
	stale := make([]string, 0)
	for key, e := range m.entries {
		if now.Sub(e.LastAttempt) > retention && !e.Locked(now) {
			stale = append(stale, key)
		}
	}
	m.mu.Unlock()

	removed := 0
	for _, key := range stale {
		m.mu.Lock()
		e, ok := m.entries[key]
		now = m.now()
		if ok && now.Sub(e.LastAttempt) > retention && !e.Locked(now) {
			delete(m.entries, key)
			removed++
		}
		m.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
