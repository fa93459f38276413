package adminAuth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/adminAuth/clientstore"
)

func (e *Engine) persistToken(ctx context.Context, token string) error {
	return e.clientStorage(ctx).Set(clientstore.KeyAuthToken, token)
}

func (e *Engine) clearToken(ctx context.Context) {
	if err := e.clientStorage(ctx).Delete(clientstore.KeyAuthToken); err != nil {
		e.logger.WarnContext(ctx, "clear persisted token failed", slog.Any("error", err))
	}
}

var errSessionVanished = errors.New("session missing after write")

// storedExpiry reads the absolute deadline the store recorded for token.
func (e *Engine) storedExpiry(ctx context.Context, token string) (time.Time, bool, error) {
	s, ok, err := e.sessions.Get(ctx, token)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return s.ExpiresAt, true, nil
}

// PersistedToken returns the token held in client storage, if any.
func (e *Engine) PersistedToken(ctx context.Context) (string, bool, error) {
	token, ok, err := e.clientStorage(ctx).Get(clientstore.KeyAuthToken)
	if err != nil {
		return "", false, e.internal(ctx, "read_token", err, PhaseAnonymous)
	}
	return token, ok && token != "", nil
}

// CheckAuth reconciles the persisted token with the session store. A
// missing, expired or idle token yields an anonymous result and clears the
// persisted token; a valid one is refreshed and returns its user.
func (e *Engine) CheckAuth(ctx context.Context) (*CheckAuthResult, error) {
	defer e.observe(time.Now())

	if err := e.wait(ctx, e.config.Latency.CheckAuth, PhaseAnonymous); err != nil {
		return nil, err
	}

	anonymous := &CheckAuthResult{Phase: PhaseAnonymous}

	token, ok, err := e.PersistedToken(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return anonymous, nil
	}

	v, err := e.sessions.Validate(ctx, token)
	if err != nil {
		return nil, e.internal(ctx, "session_validate", err, PhaseAnonymous)
	}
	if !v.Valid {
		e.rejectSession(ctx, token, string(v.Reason), "")
		return anonymous, nil
	}

	user, err := e.users.FindByID(ctx, v.UserID)
	if err != nil {
		if !isNotFound(err) {
			return nil, e.internal(ctx, "check_user_lookup", err, PhaseAnonymous)
		}
		if rmErr := e.sessions.Remove(ctx, token); rmErr != nil {
			return nil, e.internal(ctx, "session_remove", rmErr, PhaseAnonymous)
		}
		e.rejectSession(ctx, token, "user not found", v.UserID)
		return anonymous, nil
	}

	refreshed, err := e.sessions.Refresh(ctx, token)
	if err != nil {
		return nil, e.internal(ctx, "session_refresh", err, PhaseAnonymous)
	}
	if !refreshed {
		e.rejectSession(ctx, token, "refresh rejected", v.UserID)
		return anonymous, nil
	}

	expiresAt, ok, err := e.storedExpiry(ctx, token)
	if err != nil {
		return nil, e.internal(ctx, "session_get", err, PhaseAnonymous)
	}
	if !ok {
		e.rejectSession(ctx, token, "removed during refresh", v.UserID)
		return anonymous, nil
	}

	e.metricInc(MetricSessionRefreshed)
	return &CheckAuthResult{
		Authenticated: true,
		User:          user.Profile(),
		Phase:         PhaseAuthenticated,
		ExpiresAt:     expiresAt,
	}, nil
}

func (e *Engine) rejectSession(ctx context.Context, token, reason, userID string) {
	e.clearToken(ctx)
	e.metricInc(MetricSessionInvalid)
	e.logger.DebugContext(ctx, "persisted session rejected",
		slog.String("session", sessionRef(token)),
		slog.String("reason", reason),
	)
	e.emitAudit(ctx, auditEventSessionRejected, false, userID, "", token, nil, func() map[string]string {
		return map[string]string{"reason": reason}
	})
}

// Logout removes the current session and clears the persisted token. It
// always leaves the caller anonymous: backend failures are logged, never
// returned, and an already invalid token is not an error.
func (e *Engine) Logout(ctx context.Context) {
	defer e.observe(time.Now())

	// Logout cannot fail, so a cancelled ctx only cuts the delay short.
	_ = e.wait(ctx, e.config.Latency.Logout, PhaseAnonymous)

	storage := e.clientStorage(ctx)
	token, ok, err := storage.Get(clientstore.KeyAuthToken)
	if err != nil {
		e.logger.WarnContext(ctx, "read persisted token failed", slog.Any("error", err))
	}

	var userID string
	if ok && token != "" {
		rmCtx := context.WithoutCancel(ctx)
		if s, found, getErr := e.sessions.Get(rmCtx, token); getErr == nil && found {
			userID = s.UserID
		}
		if err := e.sessions.Remove(rmCtx, token); err != nil {
			e.metricInc(MetricInternalError)
			e.logger.ErrorContext(ctx, "session remove failed", slog.Any("error", err))
		}
	}
	e.clearToken(ctx)

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, userID, "", token, nil, nil)
}
