package adminAuth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/adminAuth/credential"
	"github.com/MrEthical07/adminAuth/internal/stores"
	"github.com/MrEthical07/adminAuth/password"
	"github.com/MrEthical07/adminAuth/userdir"
)

// dummyHash is compared against when the email is unknown so both paths
// hash and compare once.
var dummyHash = credential.Hash("adminauth-unknown-account")

// Login checks email and password. On success an OTP is issued to the
// configured sender and the caller moves to PhaseAwaitingOTP.
//
// Failures are *AuthError values: KindValidation for a malformed email
// (no limiter cost), KindRateLimited while the email is locked (the password
// is not checked), and KindInvalidCredential with remaining attempts for a
// wrong password or unknown email. The failure that exhausts the budget
// locks the email and carries LockedUntil.
func (e *Engine) Login(ctx context.Context, email, pw string) (*LoginResult, error) {
	defer e.observe(time.Now())

	if err := e.wait(ctx, e.config.Latency.Login, PhaseAnonymous); err != nil {
		return nil, err
	}
	if !credential.IsValidEmail(email) {
		e.metricInc(MetricValidationFailure)
		return nil, newAuthError(KindValidation, ErrInvalidEmail, "Invalid email format", PhaseAnonymous)
	}

	unlock := e.locks.lock(email)
	defer unlock()

	key := loginKey(email)
	policy := e.config.RateLimit.loginPolicy()

	admit, err := e.limiter.Admit(ctx, key, policy)
	if err != nil {
		return nil, e.internal(ctx, "login_admit", err, PhaseAnonymous)
	}
	if !admit.Allowed {
		retry := admit.RetryAfter(e.now())
		e.metricInc(MetricLoginRateLimited)
		ae := newAuthError(KindRateLimited, ErrLoginLocked,
			fmt.Sprintf("Account locked. Too many failed attempts. Try again in %d minutes.", minutesUntil(retry)),
			PhaseAnonymous,
		).withRemaining(0)
		ae.LockedUntil = admit.LockedUntil
		ae.RetryAfter = retry
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", email, "", ae, nil)
		return nil, ae
	}

	user, ok, err := e.authenticate(ctx, email, pw)
	if err != nil {
		return nil, e.internal(ctx, "login_lookup", err, PhaseAnonymous)
	}
	if !ok {
		return nil, e.loginFailure(ctx, key, email)
	}

	expiresAt, err := e.issueOTP(ctx, email)
	if err != nil {
		return nil, e.internal(ctx, "login_issue_otp", err, PhaseAnonymous)
	}
	if err := e.limiter.Reset(ctx, key); err != nil {
		// The OTP is out; a stale counter only makes the next login stricter.
		e.logger.WarnContext(ctx, "login limiter reset failed",
			slog.String("email", email),
			slog.Any("error", err),
		)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, email, "", nil, nil)

	return &LoginResult{
		RequiresOTP:  true,
		Phase:        PhaseAwaitingOTP,
		Message:      "OTP sent to " + email,
		OTPExpiresAt: expiresAt,
	}, nil
}

func (e *Engine) loginFailure(ctx context.Context, key, email string) error {
	d, err := e.limiter.RecordFailure(ctx, key, e.config.RateLimit.loginPolicy())
	if err != nil {
		return e.internal(ctx, "login_record_failure", err, PhaseAnonymous)
	}
	e.metricInc(MetricLoginFailure)

	msg := fmt.Sprintf("Invalid credentials. %d attempts remaining.", d.Remaining)
	if d.Remaining <= 0 {
		msg = "Account locked due to too many failed attempts."
	}
	ae := newAuthError(KindInvalidCredential, ErrBadPassword, msg, PhaseAnonymous).withRemaining(d.Remaining)

	if !d.Allowed {
		ae.LockedUntil = d.LockedUntil
		ae.RetryAfter = d.RetryAfter(e.now())
		e.metricInc(MetricLoginLockout)
		e.logger.WarnContext(ctx, "login locked",
			slog.String("email", email),
			slog.Time("locked_until", d.LockedUntil),
		)
		e.emitAudit(ctx, auditEventLoginLocked, false, "", email, "", ae, nil)
		return ae
	}

	e.emitAudit(ctx, auditEventLoginFailure, false, "", email, "", ae, func() map[string]string {
		return map[string]string{"remaining": fmt.Sprint(d.Remaining)}
	})
	return ae
}

// authenticate reports whether pw matches the account for email. Unknown
// emails and wrong passwords are indistinguishable to the caller.
func (e *Engine) authenticate(ctx context.Context, email, pw string) (userdir.User, bool, error) {
	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			credential.SecureCompare(dummyHash, credential.Hash(pw))
			return userdir.User{}, false, nil
		}
		return userdir.User{}, false, err
	}

	ok, err := password.Detect(user.PasswordHash).Verify(pw, user.PasswordHash)
	if err != nil {
		return userdir.User{}, false, fmt.Errorf("verify stored hash for %s: %w", user.ID, err)
	}
	return user, ok, nil
}

// issueOTP generates a code, overwrites the pending entry for email and
// hands the code to the sender. A delivery failure removes the entry.
func (e *Engine) issueOTP(ctx context.Context, email string) (time.Time, error) {
	code, err := credential.GenerateOTP(e.config.OTP.Digits)
	if err != nil {
		return time.Time{}, err
	}

	now := e.now()
	entry := stores.OTPEntry{
		CodeHash:  credential.Hash(code),
		CreatedAt: now,
		ExpiresAt: now.Add(e.config.OTP.TTL),
	}
	if err := e.otps.Put(ctx, email, entry); err != nil {
		return time.Time{}, err
	}

	if err := e.sender.SendOTP(ctx, email, code, entry.ExpiresAt); err != nil {
		if _, delErr := e.otps.Delete(ctx, email); delErr != nil {
			e.logger.WarnContext(ctx, "otp cleanup after delivery failure", slog.Any("error", delErr))
		}
		return time.Time{}, fmt.Errorf("%w: %v", ErrOTPDelivery, err)
	}

	e.metricInc(MetricOTPIssued)
	e.logger.InfoContext(ctx, "otp issued",
		slog.String("email", email),
		slog.Time("expires_at", entry.ExpiresAt),
	)
	e.emitAudit(ctx, auditEventOTPIssued, true, "", email, "", nil, nil)
	return entry.ExpiresAt, nil
}
