package adminAuth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// SweepReport counts entries removed by one maintenance pass.
type SweepReport struct {
	RateLimits int
	Sessions   int
	OTPs       int
}

// Total is the sum of all removed entries.
func (r SweepReport) Total() int {
	return r.RateLimits + r.Sessions + r.OTPs
}

// RunMaintenance runs the three periodic sweeps until ctx is done:
// limiter entries older than RateLimit.Retention, expired or idle sessions,
// and expired OTP entries. Sweep failures are logged and retried on the
// next tick. It returns nil once ctx is cancelled.
func (e *Engine) RunMaintenance(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	m := e.config.Maintenance
	g.Go(func() error {
		return e.every(ctx, m.RateLimitInterval, "rate_limit", e.sweepRateLimits)
	})
	g.Go(func() error {
		return e.every(ctx, m.SessionInterval, "session", e.sweepSessions)
	})
	g.Go(func() error {
		return e.every(ctx, m.OTPInterval, "otp", e.sweepOTPs)
	})

	return g.Wait()
}

func (e *Engine) every(ctx context.Context, interval time.Duration, name string, sweep func(context.Context) (int, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				e.metricInc(MetricInternalError)
				e.logger.ErrorContext(ctx, "maintenance sweep failed",
					slog.String("sweep", name),
					slog.Any("error", err),
				)
				continue
			}
			e.recordSweep(ctx, name, n)
		}
	}
}

// SweepOnce runs every sweep immediately, in order. It stops at the first
// failure and returns what was removed so far.
func (e *Engine) SweepOnce(ctx context.Context) (SweepReport, error) {
	var (
		r   SweepReport
		err error
	)
	if r.RateLimits, err = e.sweepRateLimits(ctx); err != nil {
		return r, fmt.Errorf("%w: rate limit sweep: %v", ErrStoreUnavailable, err)
	}
	e.recordSweep(ctx, "rate_limit", r.RateLimits)
	if r.Sessions, err = e.sweepSessions(ctx); err != nil {
		return r, fmt.Errorf("%w: session sweep: %v", ErrStoreUnavailable, err)
	}
	e.recordSweep(ctx, "session", r.Sessions)
	if r.OTPs, err = e.sweepOTPs(ctx); err != nil {
		return r, fmt.Errorf("%w: otp sweep: %v", ErrStoreUnavailable, err)
	}
	e.recordSweep(ctx, "otp", r.OTPs)
	return r, nil
}

func (e *Engine) sweepRateLimits(ctx context.Context) (int, error) {
	return e.limiter.Cleanup(ctx, e.config.RateLimit.Retention)
}

func (e *Engine) sweepSessions(ctx context.Context) (int, error) {
	return e.sessions.Cleanup(ctx)
}

func (e *Engine) sweepOTPs(ctx context.Context) (int, error) {
	return e.otps.Cleanup(ctx)
}

func (e *Engine) recordSweep(ctx context.Context, name string, n int) {
	if n <= 0 {
		return
	}
	if e.metrics != nil {
		e.metrics.Add(MetricSweepRemoved, uint64(n))
	}
	e.logger.DebugContext(ctx, "maintenance sweep",
		slog.String("sweep", name),
		slog.Int("removed", n),
	)
	e.emitAudit(ctx, auditEventMaintenanceSweep, true, "", "", "", nil, func() map[string]string {
		return map[string]string{"sweep": name, "removed": fmt.Sprint(n)}
	})
}
