package stores

import (
	"context"
	"sync"
	"time"
)

// MemoryOTPStore keeps OTP entries in process.
type MemoryOTPStore struct {
	mu      sync.Mutex
	entries map[string]OTPEntry
	now     func() time.Time
}

// NewMemoryOTPStore returns an empty store. now defaults to time.Now.
func NewMemoryOTPStore(now func() time.Time) *MemoryOTPStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryOTPStore{entries: make(map[string]OTPEntry), now: now}
}

func (s *MemoryOTPStore) Put(_ context.Context, email string, e OTPEntry) error {
	s.mu.Lock()
	s.entries[email] = e
	s.mu.Unlock()
	return nil
}

func (s *MemoryOTPStore) Get(_ context.Context, email string) (OTPEntry, bool, error) {
	s.mu.Lock()
	e, ok := s.entries[email]
	s.mu.Unlock()
	return e, ok, nil
}

func (s *MemoryOTPStore) Delete(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[email]
	delete(s.entries, email)
	return ok, nil
}

func (s *MemoryOTPStore) RecordFailure(_ context.Context, email string, maxAttempts int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[email]
	if !ok {
		return 0, false, ErrOTPNotFound
	}
	e.Attempts++
	if e.Attempts >= maxAttempts {
		delete(s.entries, email)
		return e.Attempts, true, nil
	}
	s.entries[email] = e
	return e.Attempts, false, nil
}

// Cleanup drops expired entries, re-checking each under the lock so an entry
// overwritten by a resend after the scan survives.
func (s *MemoryOTPStore) Cleanup(context.Context) (int, error) {
	s.mu.Lock()
	now := s.now()
	stale := make([]string, 0)
	for email, e := range s.entries {
		if e.Expired(now) {
			stale = append(stale, email)
		}
	}
	s.mu.Unlock()

	removed := 0
	for _, email := range stale {
		s.mu.Lock()
		if e, ok := s.entries[email]; ok && e.Expired(s.now()) {
			delete(s.entries, email)
			removed++
		}
		s.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of pending entries.
func (s *MemoryOTPStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
