package adminAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/adminAuth/credential"
)

const (
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventLoginRateLimited    = "login_rate_limited"
	auditEventLoginLocked         = "login_locked"
	auditEventOTPIssued           = "otp_issued"
	auditEventOTPResent           = "otp_resent"
	auditEventOTPResendThrottled  = "otp_resend_throttled"
	auditEventOTPSuccess          = "otp_success"
	auditEventOTPFailure          = "otp_failure"
	auditEventOTPExpired          = "otp_expired"
	auditEventOTPAttemptsExceeded = "otp_attempts_exceeded"
	auditEventSessionCreated      = "session_created"
	auditEventSessionRejected     = "session_rejected"
	auditEventLogoutSession       = "logout_session"
	auditEventLogoutAll           = "logout_all"
	auditEventMaintenanceSweep    = "maintenance_sweep"
)

// AuditErrorCode is the stable, low-cardinality error label on audit events.
type AuditErrorCode string

const (
	auditErrValidation        AuditErrorCode = "validation"
	auditErrInvalidCredential AuditErrorCode = "invalid_credentials"
	auditErrRateLimited       AuditErrorCode = "rate_limited"
	auditErrNotFound          AuditErrorCode = "not_found"
	auditErrExpired           AuditErrorCode = "expired"
	auditErrAttemptsExceeded  AuditErrorCode = "attempts_exceeded"
	auditErrInternal          AuditErrorCode = "internal"
)

func auditCodeFor(err error) AuditErrorCode {
	if errors.Is(err, ErrOTPAttemptsExceeded) {
		return auditErrAttemptsExceeded
	}
	switch KindOf(err) {
	case KindValidation:
		return auditErrValidation
	case KindRateLimited:
		return auditErrRateLimited
	case KindInvalidCredential:
		return auditErrInvalidCredential
	case KindExpired:
		return auditErrExpired
	case KindNotFound:
		return auditErrNotFound
	default:
		return auditErrInternal
	}
}

// sessionRef is the audit identifier for a token. The token itself is a
// bearer credential and never leaves the engine.
func sessionRef(token string) string {
	if token == "" {
		return ""
	}
	return credential.Hash(token)[:16]
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID, email, token string, err error, metadata func() map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		SessionID: sessionRef(token),
		IP:        clientIPFromContext(ctx),
		Success:   success,
	}
	if err != nil {
		event.Error = string(auditCodeFor(err))
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	e.audit.Emit(ctx, event)
}
