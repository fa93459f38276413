package adminAuth

import (
	"errors"
	"time"
)

// ErrorKind classifies an expected failure so the caller can branch on it
// without parsing messages.
type ErrorKind uint8

const (
	// KindValidation is a malformed email or OTP caught before any state change.
	KindValidation ErrorKind = iota + 1
	// KindRateLimited is a denied admission; RetryAfter and LockedUntil are set.
	KindRateLimited
	// KindInvalidCredential is a password or OTP mismatch.
	KindInvalidCredential
	// KindExpired is an OTP or session past its deadline.
	KindExpired
	// KindNotFound means no user, session or OTP record exists for the key.
	KindNotFound
	// KindInternal is an unexpected backend failure. The operation failed closed.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidCredential:
		return "invalid_credential"
	case KindExpired:
		return "expired"
	case KindNotFound:
		return "not_found"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindRateLimited:
		return ErrRateLimited
	case KindInvalidCredential:
		return ErrInvalidCredential
	case KindExpired:
		return ErrExpired
	case KindNotFound:
		return ErrNotFound
	default:
		return ErrInternal
	}
}

// Kind sentinels. Every *AuthError matches exactly one of these with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrRateLimited       = errors.New("rate limited")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrExpired           = errors.New("expired")
	ErrNotFound          = errors.New("not found")
	ErrInternal          = errors.New("internal error")
)

// Causes. These are wrapped in AuthError.Err and also match with errors.Is.
var (
	// ErrInvalidEmail is returned for an email that fails the shape check.
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrInvalidOTPFormat is returned for a code that is not exactly OTP.Digits digits.
	ErrInvalidOTPFormat = errors.New("invalid otp format")
	// ErrLoginLocked is returned while the login key is locked.
	ErrLoginLocked = errors.New("login locked")
	// ErrResendThrottled is returned when resend requests exceed the window budget.
	ErrResendThrottled = errors.New("otp resend throttled")
	// ErrBadPassword is returned for an unknown email or a wrong password.
	ErrBadPassword = errors.New("invalid email or password")
	// ErrBadOTP is returned for a wrong OTP code.
	ErrBadOTP = errors.New("invalid otp")
	// ErrOTPAttemptsExceeded is returned once an OTP entry has exhausted its attempts.
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	// ErrOTPNotFound is returned when no OTP is pending for the email.
	ErrOTPNotFound = errors.New("otp not found")
	// ErrOTPExpired is returned when the pending OTP is past its deadline.
	ErrOTPExpired = errors.New("otp expired")
	// ErrUserNotFound is returned when the directory has no account for the email.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionNotFound is returned when no session matches the token.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStoreUnavailable wraps backend failures from the limiter, OTP or session stores.
	ErrStoreUnavailable = errors.New("auth store unavailable")
	// ErrOTPDelivery is returned when the configured OTPSender fails.
	ErrOTPDelivery = errors.New("otp delivery failed")
)

// AuthError is the tagged failure returned by every Engine operation.
type AuthError struct {
	Kind    ErrorKind
	Message string
	// Phase is the login ceremony phase the caller should move to.
	Phase       Phase
	LockedUntil time.Time
	RetryAfter  time.Duration
	Err         error

	remaining    int
	hasRemaining bool
}

func (e *AuthError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinel for e.Kind.
func (e *AuthError) Is(target error) bool {
	return e != nil && target == e.Kind.sentinel()
}

// RemainingAttempts reports attempts left before lockout, when the failure
// carries that information.
func (e *AuthError) RemainingAttempts() (int, bool) {
	if e == nil {
		return 0, false
	}
	return e.remaining, e.hasRemaining
}

// LockedUntilMillis returns the unlock time as Unix milliseconds, or 0.
func (e *AuthError) LockedUntilMillis() int64 {
	if e == nil || e.LockedUntil.IsZero() {
		return 0
	}
	return e.LockedUntil.UnixMilli()
}

func (e *AuthError) withRemaining(n int) *AuthError {
	if n < 0 {
		n = 0
	}
	e.remaining = n
	e.hasRemaining = true
	return e
}

// KindOf returns the kind of err. Errors that are not *AuthError are
// reported as KindInternal; nil reports 0.
func KindOf(err error) ErrorKind {
	if err == nil {
		return 0
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func newAuthError(kind ErrorKind, cause error, msg string, phase Phase) *AuthError {
	return &AuthError{
		Kind:    kind,
		Message: msg,
		Phase:   phase,
		Err:     cause,
	}
}
