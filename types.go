package adminAuth

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/adminAuth/session"
	"github.com/MrEthical07/adminAuth/userdir"
)

// Phase is the position of a caller in the login ceremony.
type Phase uint8

const (
	// PhaseAnonymous means no login is in progress.
	PhaseAnonymous Phase = iota
	// PhaseAwaitingOTP means the password step passed and an OTP is pending.
	PhaseAwaitingOTP
	// PhaseAuthenticated means a session token was issued.
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingOTP:
		return "awaiting_otp"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// PublicUser is the projection of an account that leaves the engine. It
// never carries the password hash.
type PublicUser = userdir.Profile

// LoginResult is returned by [Engine.Login] when the password step passes.
type LoginResult struct {
	RequiresOTP  bool
	Phase        Phase
	Message      string
	OTPExpiresAt time.Time
}

// VerifyResult is returned by [Engine.VerifyOTP] on success.
type VerifyResult struct {
	Token     string
	User      PublicUser
	Phase     Phase
	ExpiresAt time.Time
}

// ResendResult is returned by [Engine.ResendOTP] on success.
type ResendResult struct {
	Message      string
	OTPExpiresAt time.Time
}

// CheckAuthResult is returned by [Engine.CheckAuth]. A zero Authenticated
// with a nil error means the caller is anonymous.
type CheckAuthResult struct {
	Authenticated bool
	User          PublicUser
	Phase         Phase
	ExpiresAt     time.Time
}

// SessionInfo describes one active session for session-management screens.
type SessionInfo struct {
	Token        string
	UserID       string
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
	IPAddress    string
	UserAgent    string
}

func sessionInfo(s session.Session) SessionInfo {
	return SessionInfo{
		Token:        s.Token,
		UserID:       s.UserID,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		ExpiresAt:    s.ExpiresAt,
		IPAddress:    s.IPAddress,
		UserAgent:    s.UserAgent,
	}
}

// OTPSender delivers a freshly generated code. The engine only generates
// and stores codes; SMS or email delivery is the sender's job.
type OTPSender interface {
	SendOTP(ctx context.Context, email, code string, expiresAt time.Time) error
}

// OTPSenderFunc adapts a function to [OTPSender].
type OTPSenderFunc func(ctx context.Context, email, code string, expiresAt time.Time) error

// SendOTP calls f.
func (f OTPSenderFunc) SendOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	return f(ctx, email, code, expiresAt)
}

// LogSender writes codes to a logger at debug level. It is the default
// sender and is meant for development only.
type LogSender struct {
	Logger *slog.Logger
}

// SendOTP logs the code.
func (s LogSender) SendOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "otp issued",
		slog.String("email", email),
		slog.String("code", code),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}
