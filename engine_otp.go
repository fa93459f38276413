package adminAuth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/adminAuth/credential"
	"github.com/MrEthical07/adminAuth/internal/stores"
	"github.com/MrEthical07/adminAuth/session"
)

// VerifyOTP completes the ceremony. A correct code within its deadline and
// attempt budget is consumed, a session is created, and the token is
// persisted to client storage.
//
// An entry that has used all its attempts is discarded and the caller is
// sent back to PhaseAnonymous to log in again.
func (e *Engine) VerifyOTP(ctx context.Context, email, code string) (*VerifyResult, error) {
	defer e.observe(time.Now())

	if err := e.wait(ctx, e.config.Latency.VerifyOTP, PhaseAwaitingOTP); err != nil {
		return nil, err
	}
	if !credential.IsValidEmail(email) {
		e.metricInc(MetricValidationFailure)
		return nil, newAuthError(KindValidation, ErrInvalidEmail, "Invalid email format", PhaseAnonymous)
	}
	if !e.validCode(code) {
		e.metricInc(MetricValidationFailure)
		return nil, newAuthError(KindValidation, ErrInvalidOTPFormat,
			fmt.Sprintf("OTP must be exactly %d digits", e.config.OTP.Digits), PhaseAwaitingOTP)
	}

	unlock := e.locks.lock(email)
	defer unlock()

	entry, ok, err := e.otps.Get(ctx, email)
	if err != nil {
		return nil, e.internal(ctx, "otp_get", err, PhaseAwaitingOTP)
	}
	if !ok {
		return nil, e.otpNotFound(ctx, email)
	}

	maxAttempts := e.config.OTP.MaxAttempts
	now := e.now()

	if entry.Expired(now) {
		if _, err := e.otps.Delete(ctx, email); err != nil {
			return nil, e.internal(ctx, "otp_delete", err, PhaseAwaitingOTP)
		}
		e.metricInc(MetricOTPExpired)
		ae := newAuthError(KindExpired, ErrOTPExpired, "OTP has expired. Please request a new one.", PhaseAwaitingOTP)
		e.emitAudit(ctx, auditEventOTPExpired, false, "", email, "", ae, nil)
		return nil, ae
	}

	if entry.Attempts >= maxAttempts {
		if _, err := e.otps.Delete(ctx, email); err != nil {
			return nil, e.internal(ctx, "otp_delete", err, PhaseAnonymous)
		}
		return nil, e.otpExhausted(ctx, email, "Too many failed OTP attempts. Please login again.")
	}

	if !credential.SecureCompare(entry.CodeHash, credential.Hash(code)) {
		return nil, e.otpMismatch(ctx, email, maxAttempts)
	}

	deleted, err := e.otps.Delete(ctx, email)
	if err != nil {
		return nil, e.internal(ctx, "otp_delete", err, PhaseAwaitingOTP)
	}
	if !deleted {
		// consumed by another process between Get and Delete
		return nil, e.otpNotFound(ctx, email)
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil, newAuthError(KindNotFound, ErrUserNotFound, "User not found", PhaseAnonymous)
		}
		return nil, e.internal(ctx, "otp_user_lookup", err, PhaseAnonymous)
	}

	token, err := e.sessions.Create(ctx, user.ID, session.Metadata{
		IPAddress: clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	})
	if err != nil {
		return nil, e.internal(ctx, "session_create", err, PhaseAnonymous)
	}

	expiresAt, ok, err := e.storedExpiry(ctx, token)
	if err == nil && !ok {
		err = errSessionVanished
	}
	if err == nil {
		err = e.persistToken(ctx, token)
	}
	if err != nil {
		if rmErr := e.sessions.Remove(ctx, token); rmErr != nil {
			e.logger.WarnContext(ctx, "session rollback failed", slog.Any("error", rmErr))
		}
		return nil, e.internal(ctx, "persist_token", err, PhaseAnonymous)
	}

	e.metricInc(MetricOTPSuccess)
	e.metricInc(MetricSessionCreated)
	e.logger.InfoContext(ctx, "session created",
		slog.String("user_id", user.ID),
		slog.String("session", sessionRef(token)),
	)
	e.emitAudit(ctx, auditEventOTPSuccess, true, user.ID, email, "", nil, nil)
	e.emitAudit(ctx, auditEventSessionCreated, true, user.ID, email, token, nil, nil)

	return &VerifyResult{
		Token:     token,
		User:      user.Profile(),
		Phase:     PhaseAuthenticated,
		ExpiresAt: expiresAt,
	}, nil
}

func (e *Engine) otpNotFound(ctx context.Context, email string) error {
	ae := newAuthError(KindNotFound, ErrOTPNotFound, "OTP not found or expired. Please request a new one.", PhaseAwaitingOTP)
	e.metricInc(MetricOTPFailure)
	e.emitAudit(ctx, auditEventOTPFailure, false, "", email, "", ae, nil)
	return ae
}

func (e *Engine) otpExhausted(ctx context.Context, email, msg string) error {
	e.metricInc(MetricOTPAttemptsExceeded)
	ae := newAuthError(KindInvalidCredential, ErrOTPAttemptsExceeded, msg, PhaseAnonymous).withRemaining(0)
	e.logger.WarnContext(ctx, "otp attempts exhausted", slog.String("email", email))
	e.emitAudit(ctx, auditEventOTPAttemptsExceeded, false, "", email, "", ae, nil)
	return ae
}

func (e *Engine) otpMismatch(ctx context.Context, email string, maxAttempts int) error {
	attempts, exceeded, err := e.otps.RecordFailure(ctx, email, maxAttempts)
	if err != nil {
		if errors.Is(err, stores.ErrOTPNotFound) {
			return e.otpNotFound(ctx, email)
		}
		return e.internal(ctx, "otp_record_failure", err, PhaseAwaitingOTP)
	}
	e.metricInc(MetricOTPFailure)

	if exceeded {
		return e.otpExhausted(ctx, email, "Too many failed attempts. Please login again.")
	}

	remaining := maxAttempts - attempts
	ae := newAuthError(KindInvalidCredential, ErrBadOTP,
		fmt.Sprintf("Invalid OTP. %d attempts remaining.", remaining), PhaseAwaitingOTP,
	).withRemaining(remaining)
	e.emitAudit(ctx, auditEventOTPFailure, false, "", email, "", ae, func() map[string]string {
		return map[string]string{"remaining": fmt.Sprint(remaining)}
	})
	return ae
}

// ResendOTP replaces the pending code for email with a fresh one. Requests
// are limited per email to OTP.ResendMax per OTP.ResendCooldown; a throttled
// request leaves the pending entry untouched.
func (e *Engine) ResendOTP(ctx context.Context, email string) (*ResendResult, error) {
	defer e.observe(time.Now())

	if err := e.wait(ctx, e.config.Latency.ResendOTP, PhaseAwaitingOTP); err != nil {
		return nil, err
	}
	if !credential.IsValidEmail(email) {
		e.metricInc(MetricValidationFailure)
		return nil, newAuthError(KindValidation, ErrInvalidEmail, "Invalid email format", PhaseAnonymous)
	}

	unlock := e.locks.lock(email)
	defer unlock()

	d, err := e.limiter.Allow(ctx, resendKey(email), e.config.OTP.resendPolicy())
	if err != nil {
		return nil, e.internal(ctx, "resend_allow", err, PhaseAwaitingOTP)
	}
	if !d.Allowed {
		e.metricInc(MetricOTPResendThrottled)
		ae := newAuthError(KindRateLimited, ErrResendThrottled, "Please wait before requesting a new OTP.", PhaseAwaitingOTP)
		ae.LockedUntil = d.LockedUntil
		ae.RetryAfter = d.RetryAfter(e.now())
		e.emitAudit(ctx, auditEventOTPResendThrottled, false, "", email, "", ae, nil)
		return nil, ae
	}

	if _, err := e.users.FindByEmail(ctx, email); err != nil {
		if isNotFound(err) {
			return nil, newAuthError(KindNotFound, ErrUserNotFound, "User not found", PhaseAnonymous)
		}
		return nil, e.internal(ctx, "resend_user_lookup", err, PhaseAwaitingOTP)
	}

	expiresAt, err := e.issueOTP(ctx, email)
	if err != nil {
		return nil, e.internal(ctx, "resend_issue_otp", err, PhaseAwaitingOTP)
	}
	e.emitAudit(ctx, auditEventOTPResent, true, "", email, "", nil, nil)

	return &ResendResult{
		Message:      "New OTP sent successfully",
		OTPExpiresAt: expiresAt,
	}, nil
}
