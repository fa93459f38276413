package session

import (
	"context"
	"time"
)

const (
	// DefaultTokenLifetime is the absolute session lifetime.
	DefaultTokenLifetime = 30 * time.Minute
	// DefaultIdleTimeout evicts sessions with no activity for this long.
	DefaultIdleTimeout = 15 * time.Minute
	// DefaultTokenBytes is the token entropy; tokens are hex encoded.
	DefaultTokenBytes = 32
)

// Config controls session lifetimes.
type Config struct {
	TokenLifetime time.Duration
	IdleTimeout   time.Duration
	TokenBytes    int
}

func (c Config) withDefaults() Config {
	if c.TokenLifetime <= 0 {
		c.TokenLifetime = DefaultTokenLifetime
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.TokenBytes <= 0 {
		c.TokenBytes = DefaultTokenBytes
	}
	return c
}

// Metadata is optional client information recorded at creation.
type Metadata struct {
	IPAddress string
	UserAgent string
}

// Session is one authenticated login.
type Session struct {
	Token        string
	UserID       string
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
	IPAddress    string
	UserAgent    string
}

// Check classifies s at now.
func (s Session) Check(now time.Time, idle time.Duration) Reason {
	if !now.Before(s.ExpiresAt) {
		return ReasonExpired
	}
	if now.Sub(s.LastActivity) >= idle {
		return ReasonIdleTimeout
	}
	return ReasonNone
}

// Reason explains why a token did not validate.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonNotFound    Reason = "not found"
	ReasonExpired     Reason = "expired"
	ReasonIdleTimeout Reason = "idle timeout"
)

// Validation is the result of [Store.Validate].
type Validation struct {
	Valid  bool
	UserID string
	Reason Reason
}

// Store persists sessions and the user → tokens index.
type Store interface {
	Create(ctx context.Context, userID string, meta Metadata) (string, error)
	Validate(ctx context.Context, token string) (Validation, error)
	Refresh(ctx context.Context, token string) (bool, error)
	Get(ctx context.Context, token string) (Session, bool, error)
	Remove(ctx context.Context, token string) error
	RemoveAllForUser(ctx context.Context, userID string) (int, error)
	ListForUser(ctx context.Context, userID string) ([]Session, error)
	Cleanup(ctx context.Context) (int, error)
}
