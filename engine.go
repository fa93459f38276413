package adminAuth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/adminAuth/clientstore"
	"github.com/MrEthical07/adminAuth/internal/rate"
	"github.com/MrEthical07/adminAuth/internal/stores"
	"github.com/MrEthical07/adminAuth/password"
	"github.com/MrEthical07/adminAuth/session"
	"github.com/MrEthical07/adminAuth/userdir"
)

// Engine runs the login ceremony: password, then OTP, then session. It is
// safe for concurrent use once built.
type Engine struct {
	config   Config
	limiter  rate.Limiter
	otps     stores.OTPStore
	sessions session.Store
	users    userdir.Directory
	client   clientstore.Storage
	sender   OTPSender
	logger   *slog.Logger
	audit    *auditDispatcher
	metrics  *Metrics
	policy   password.Policy
	codeRule string
	redis    redis.UniversalClient
	now      func() time.Time
	locks    keyLocks

	startedAt time.Time
}

var codeValidator = validator.New()

const unavailableMessage = "Authentication service unavailable. Please try again."

// Close stops the audit dispatcher after draining it. Stores and the Redis
// client belong to the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// AuditDropped reports events discarded because the dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Uptime reports how long ago the engine was built, on the engine clock.
func (e *Engine) Uptime() time.Duration {
	return e.now().Sub(e.startedAt)
}

// Ping checks the Redis backend. It returns nil for the memory backend.
func (e *Engine) Ping(ctx context.Context) error {
	if e.redis == nil {
		return nil
	}
	if err := e.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observe(start time.Time) {
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricOperationLatency, time.Since(start))
	}
}

// wait sleeps for the configured operation latency or until ctx is done.
func (e *Engine) wait(ctx context.Context, d time.Duration, phase Phase) error {
	if err := ctx.Err(); err != nil {
		return e.cancelled(err, phase)
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return e.cancelled(ctx.Err(), phase)
	case <-t.C:
		return nil
	}
}

func (e *Engine) cancelled(err error, phase Phase) *AuthError {
	return newAuthError(KindInternal, err, "Request cancelled.", phase)
}

// internal logs a backend failure and returns the fail-closed error.
func (e *Engine) internal(ctx context.Context, op string, err error, phase Phase) *AuthError {
	e.metricInc(MetricInternalError)
	e.logger.ErrorContext(ctx, "auth backend failure",
		slog.String("op", op),
		slog.Any("error", err),
	)
	cause := err
	if !errors.Is(err, ErrOTPDelivery) {
		cause = fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return newAuthError(KindInternal, cause, unavailableMessage, phase)
}

func (e *Engine) clientStorage(ctx context.Context) clientstore.Storage {
	if s, ok := clientStorageFromContext(ctx); ok {
		return s
	}
	return e.client
}

func (e *Engine) validCode(code string) bool {
	return codeValidator.Var(code, e.codeRule) == nil
}

func loginKey(email string) string {
	return "login:" + email
}

func resendKey(email string) string {
	return "otp-resend:" + email
}

func minutesUntil(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}

// ValidatePassword checks pw against the configured policy.
func (e *Engine) ValidatePassword(pw string) password.PolicyResult {
	return e.policy.Check(pw)
}

// PasswordStrength returns a 0-100 score and its label.
func (e *Engine) PasswordStrength(pw string) (int, string) {
	return password.Indicator(pw)
}

// ListSessions returns the live sessions of userID.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	list, err := e.sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, e.internal(ctx, "list_sessions", err, PhaseAuthenticated)
	}
	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		out = append(out, sessionInfo(s))
	}
	return out, nil
}

// GetSession looks up one session without touching its activity time.
func (e *Engine) GetSession(ctx context.Context, token string) (SessionInfo, bool, error) {
	s, ok, err := e.sessions.Get(ctx, token)
	if err != nil {
		return SessionInfo{}, false, e.internal(ctx, "get_session", err, PhaseAnonymous)
	}
	if !ok {
		return SessionInfo{}, false, nil
	}
	return sessionInfo(s), true, nil
}

// RevokeAllSessions removes every session of userID and returns how many
// were removed.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	n, err := e.sessions.RemoveAllForUser(ctx, userID)
	if err != nil {
		return 0, e.internal(ctx, "revoke_all", err, PhaseAnonymous)
	}
	e.metricInc(MetricLogoutAll)
	e.logger.InfoContext(ctx, "sessions revoked",
		slog.String("user_id", userID),
		slog.Int("count", n),
	)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", "", nil, func() map[string]string {
		return map[string]string{"count": fmt.Sprint(n)}
	})
	return n, nil
}

// LockStatus reports the login lockout of email, for support tooling.
func (e *Engine) LockStatus(ctx context.Context, email string) (locked bool, retryAfter time.Duration, remaining int, err error) {
	key := loginKey(email)
	locked, err = e.limiter.IsLocked(ctx, key)
	if err != nil {
		return false, 0, 0, e.internal(ctx, "lock_status", err, PhaseAnonymous)
	}
	retryAfter, err = e.limiter.TimeUntilUnlock(ctx, key)
	if err != nil {
		return false, 0, 0, e.internal(ctx, "lock_status", err, PhaseAnonymous)
	}
	remaining, err = e.limiter.Remaining(ctx, key, e.config.RateLimit.MaxLoginAttempts)
	if err != nil {
		return false, 0, 0, e.internal(ctx, "lock_status", err, PhaseAnonymous)
	}
	return locked, retryAfter, remaining, nil
}

// Unlock clears the login lockout of email.
func (e *Engine) Unlock(ctx context.Context, email string) error {
	if err := e.limiter.Reset(ctx, loginKey(email)); err != nil {
		return e.internal(ctx, "unlock", err, PhaseAnonymous)
	}
	e.logger.InfoContext(ctx, "login lock cleared", slog.String("email", email))
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, userdir.ErrNotFound)
}
