package rate

import (
	"context"
	"time"
)

// DefaultRetention is how long an idle key is kept before Cleanup purges it.
const DefaultRetention = 24 * time.Hour

// Policy bounds one class of keys.
type Policy struct {
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
}

func (p Policy) valid() bool {
	return p.MaxAttempts > 0 && p.Window > 0 && p.Lockout > 0
}

// Entry is the stored state of one key.
type Entry struct {
	Attempts    int
	LastAttempt time.Time
	LockedUntil time.Time
}

// Locked reports whether the entry is locked at now.
func (e Entry) Locked(now time.Time) bool {
	return !e.LockedUntil.IsZero() && now.Before(e.LockedUntil)
}

// Decision is the outcome of a mutating call.
type Decision struct {
	Allowed     bool
	Attempts    int
	Remaining   int
	LockedUntil time.Time
}

// RetryAfter returns how long until the lock lifts, or zero.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.LockedUntil.IsZero() || !now.Before(d.LockedUntil) {
		return 0
	}
	return d.LockedUntil.Sub(now)
}

// Limiter is implemented by [Memory] and [Redis].
type Limiter interface {
	Allow(ctx context.Context, key string, p Policy) (Decision, error)
	Admit(ctx context.Context, key string, p Policy) (Decision, error)
	RecordFailure(ctx context.Context, key string, p Policy) (Decision, error)
	Reset(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (Entry, bool, error)
	Remaining(ctx context.Context, key string, maxAttempts int) (int, error)
	TimeUntilUnlock(ctx context.Context, key string) (time.Duration, error)
	IsLocked(ctx context.Context, key string) (bool, error)
	Cleanup(ctx context.Context, retention time.Duration) (int, error)
}

type mode uint8

const (
	modeAllow mode = iota
	modeAdmit
	modeFailure
)

// step applies one transition to e. It returns the decision and whether the
// entry should be kept (false means delete the key).
func step(e Entry, exists bool, now time.Time, p Policy, m mode) (Entry, Decision, bool) {
	if exists && !e.LockedUntil.IsZero() && !now.Before(e.LockedUntil) {
		// lock served
		exists = false
	}
	if exists && now.Sub(e.LastAttempt) > p.Window && !e.Locked(now) {
		exists = false
	}

	switch m {
	case modeAdmit:
		if !exists {
			return Entry{}, decide(true, 0, p, time.Time{}), false
		}
		if e.Locked(now) {
			return e, decide(false, e.Attempts, p, e.LockedUntil), true
		}
		if e.Attempts >= p.MaxAttempts {
			e.LockedUntil = now.Add(p.Lockout)
			return e, decide(false, e.Attempts, p, e.LockedUntil), true
		}
		return e, decide(true, e.Attempts, p, time.Time{}), true

	case modeAllow:
		if !exists {
			e = Entry{Attempts: 1, LastAttempt: now}
			if e.Attempts >= p.MaxAttempts {
				e.LockedUntil = now.Add(p.Lockout)
				return e, decide(false, e.Attempts, p, e.LockedUntil), true
			}
			return e, decide(true, e.Attempts, p, time.Time{}), true
		}
		if e.Locked(now) {
			return e, decide(false, e.Attempts, p, e.LockedUntil), true
		}
		e.Attempts++
		e.LastAttempt = now
		if e.Attempts >= p.MaxAttempts {
			e.LockedUntil = now.Add(p.Lockout)
			return e, decide(false, e.Attempts, p, e.LockedUntil), true
		}
		return e, decide(true, e.Attempts, p, time.Time{}), true

	default:
		if !exists {
			e = Entry{}
		}
		e.Attempts++
		e.LastAttempt = now
		if e.Attempts >= p.MaxAttempts && !e.Locked(now) {
			e.LockedUntil = now.Add(p.Lockout)
		}
		locked := e.Locked(now)
		return e, decide(!locked, e.Attempts, p, e.LockedUntil), true
	}
}

func decide(allowed bool, attempts int, p Policy, lockedUntil time.Time) Decision {
	return Decision{
		Allowed:     allowed,
		Attempts:    attempts,
		Remaining:   remaining(attempts, p.MaxAttempts),
		LockedUntil: lockedUntil,
	}
}

func remaining(attempts, maxAttempts int) int {
	if attempts >= maxAttempts {
		return 0
	}
	return maxAttempts - attempts
}

var (
	_ Limiter = (*Memory)(nil)
	_ Limiter = (*Redis)(nil)
)
