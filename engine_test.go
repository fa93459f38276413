package adminAuth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/adminAuth/clientstore"
	"github.com/MrEthical07/adminAuth/userdir"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "Admin@123"
	userEmail     = "user@example.com"
	userPassword  = "User@123"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// captureSender records the last code sent to each email.
type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
	sends int
	fail  error
}

func newCaptureSender() *captureSender {
	return &captureSender{codes: make(map[string]string)}
}

func (s *captureSender) SendOTP(_ context.Context, email, code string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.codes[email] = code
	s.sends++
	return nil
}

func (s *captureSender) code(t *testing.T, email string) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[email]
	if !ok {
		t.Fatalf("no otp captured for %s", email)
	}
	return code
}

type testEngine struct {
	*Engine
	clock  *fakeClock
	sender *captureSender
	client *clientstore.Memory
	mr     *miniredis.Miniredis
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func buildTestEngine(t *testing.T, backend string, mutate func(*Config), opts ...func(*Builder)) *testEngine {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Store.Backend = backend
	if mutate != nil {
		mutate(&cfg)
	}

	te := &testEngine{
		clock:  newFakeClock(),
		sender: newCaptureSender(),
		client: clientstore.NewMemory(),
	}

	b := New().
		WithConfig(cfg).
		WithDirectory(userdir.Demo()).
		WithClientStorage(te.client).
		WithOTPSender(te.sender).
		WithClock(te.clock.Now)
	if backend == BackendRedis {
		mr, rdb := newTestRedis(t)
		te.mr = mr
		b.WithRedis(rdb)
	}
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	te.Engine = engine
	return te
}

func forEachBackend(t *testing.T, fn func(t *testing.T, backend string)) {
	for _, backend := range []string{BackendMemory, BackendRedis} {
		t.Run(backend, func(t *testing.T) {
			fn(t, backend)
		})
	}
}

func asAuthError(t *testing.T, err error) *AuthError {
	t.Helper()
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *AuthError, got %T (%v)", err, err)
	}
	return ae
}

func (te *testEngine) loginAndVerify(t *testing.T, ctx context.Context, email, pw string) *VerifyResult {
	t.Helper()
	if _, err := te.Login(ctx, email, pw); err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	res, err := te.VerifyOTP(ctx, email, te.sender.code(t, email))
	if err != nil {
		t.Fatalf("VerifyOTP(%s): %v", email, err)
	}
	return res
}

func TestLoginThenVerifyIssuesSession(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		te := buildTestEngine(t, backend, nil)
		ctx := context.Background()

		login, err := te.Login(ctx, adminEmail, adminPassword)
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		if !login.RequiresOTP || login.Phase != PhaseAwaitingOTP {
			t.Fatalf("unexpected login result: %+v", login)
		}
		if want := te.clock.Now().Add(2 * time.Minute); !login.OTPExpiresAt.Equal(want) {
			t.Fatalf("expected otp expiry %v, got %v", want, login.OTPExpiresAt)
		}

		code := te.sender.code(t, adminEmail)
		if len(code) != 6 {
			t.Fatalf("expected 6 digit code, got %q", code)
		}

		res, err := te.VerifyOTP(ctx, adminEmail, code)
		if err != nil {
			t.Fatalf("VerifyOTP: %v", err)
		}
		if res.Phase != PhaseAuthenticated {
			t.Fatalf("expected authenticated phase, got %v", res.Phase)
		}
		if res.User.Role != userdir.RoleAdmin || res.User.Email != adminEmail || res.User.ID != "1" {
			t.Fatalf("unexpected user projection: %+v", res.User)
		}
		if len(res.Token) != 64 {
			t.Fatalf("expected 64 hex char token, got %d chars", len(res.Token))
		}

		persisted, ok, err := te.client.Get(clientstore.KeyAuthToken)
		if err != nil || !ok || persisted != res.Token {
			t.Fatalf("expected token persisted: ok=%v err=%v", ok, err)
		}

		_, err = te.VerifyOTP(ctx, adminEmail, code)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected replayed code to be NotFound, got %v", err)
		}
	})
}

func TestLoginLocksAfterMaxFailures(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		te := buildTestEngine(t, backend, nil)
		ctx := context.Background()

		for i := 1; i <= 4; i++ {
			_, err := te.Login(ctx, adminEmail, "Wrong@123")
			ae := asAuthError(t, err)
			if ae.Kind != KindInvalidCredential {
				t.Fatalf("attempt %d: expected invalid credential, got %v", i, ae.Kind)
			}
			remaining, ok := ae.RemainingAttempts()
			if !ok || remaining != 5-i {
				t.Fatalf("attempt %d: expected %d remaining, got %d (%v)", i, 5-i, remaining, ok)
			}
			if !ae.LockedUntil.IsZero() {
				t.Fatalf("attempt %d: unexpected lock", i)
			}
		}

		_, err := te.Login(ctx, adminEmail, "Wrong@123")
		ae := asAuthError(t, err)
		if ae.Kind != KindInvalidCredential || ae.LockedUntil.IsZero() {
			t.Fatalf("expected fifth failure to lock, got %+v", ae)
		}
		if ae.Message != "Account locked due to too many failed attempts." {
			t.Fatalf("unexpected message %q", ae.Message)
		}

		_, err = te.Login(ctx, adminEmail, adminPassword)
		if !errors.Is(err, ErrRateLimited) || !errors.Is(err, ErrLoginLocked) {
			t.Fatalf("expected correct password to be rate limited, got %v", err)
		}
		ae = asAuthError(t, err)
		if ae.LockedUntilMillis() <= te.clock.Now().UnixMilli() {
			t.Fatalf("expected lock in the future, got %d", ae.LockedUntilMillis())
		}
		if ae.RetryAfter != 15*time.Minute {
			t.Fatalf("expected 15m retry, got %v", ae.RetryAfter)
		}
		if ae.Message != "Account locked. Too many failed attempts. Try again in 15 minutes." {
			t.Fatalf("unexpected message %q", ae.Message)
		}
		if te.sender.sends != 0 {
			t.Fatal("no code must be sent while locked")
		}

		// other accounts are unaffected
		if _, err := te.Login(ctx, userEmail, userPassword); err != nil {
			t.Fatalf("expected other account to log in, got %v", err)
		}

		te.clock.Advance(15*time.Minute + time.Second)
		if _, err := te.Login(ctx, adminEmail, adminPassword); err != nil {
			t.Fatalf("expected login after lockout, got %v", err)
		}
	})
}

func TestLoginSuccessResetsFailures(t *testing.T) {
	te := buildTestEngine(t, BackendMemory, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = te.Login(ctx, adminEmail, "nope")
	}
	if _, err := te.Login(ctx, adminEmail, adminPassword); err != nil {
		t.Fatalf("Login: %v", err)
	}

	locked, _, remaining, err := te.LockStatus(ctx, adminEmail)
	if err != nil {
		t.Fatalf("LockStatus: %v", err)
	}
	if locked || remaining != 5 {
		t.Fatalf("expected reset limiter, locked=%v remaining=%d", locked, remaining)
	}
}

func TestLoginInvalidEmailHasNoLimiterCost(t *testing.T) {
	te := buildTestEngine(t, BackendMemory, nil)
	ctx := context.Background()

	for _, email := range []string{"", "admin", "admin@example", "a b@example.com"} {
		_, err := te.Login(ctx, email, adminPassword)
		if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("Login(%q): expected validation error, got %v", email, err)
		}
	}

	_, _, remaining, err := te.LockStatus(ctx, "admin")
	if err != nil || remaining != 5 {
		t.Fatalf("expected untouched limiter, remaining=%d err=%v", remaining, err)
	}
}

func TestLoginUnknownEmailCountsAsFailure(t *testing.T) {
	te := buildTestEngine(t, BackendMemory, nil)
	ctx := context.Background()

	_, err := te.Login(ctx, "ghost@example.com", adminPassword)
	ae := asAuthError(t, err)
	if ae.Kind != KindInvalidCredential || !errors.Is(err, ErrBadPassword) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
	if remaining, _ := ae.RemainingAttempts(); remaining != 4 {
		t.Fatalf("expected 4 remaining, got %d", remaining)
	}
}

func TestVerifyOTPWrongCodesExhaustEntry(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		te := buildTestEngine(t, backend, nil)
		ctx := context.Background()

		if _, err := te.Login(ctx, adminEmail, adminPassword); err != nil {
			t.Fatalf("Login: %v", err)
		}
		code := te.sender.code(t, adminEmail)
		wrong := "000000"
		if code == wrong {
			wrong = "111111"
		}

		for i, want := range []int{2, 1} {
			_, err := te.VerifyOTP(ctx, adminEmail, wrong)
			ae := asAuthError(t, err)
			if ae.Kind != KindInvalidCredential || ae.Phase != PhaseAwaitingOTP {
				t.Fatalf("attempt %d: unexpected error %+v", i+1, ae)
			}
			if remaining, _ := ae.RemainingAttempts(); remaining != want {
				t.Fatalf("attempt %d: expected %d remaining, got %d", i+1, want, remaining)
			}
		}

		_, err := te.VerifyOTP(ctx, adminEmail, wrong)
		ae := asAuthError(t, err)
		if !errors.Is(err, ErrOTPAttemptsExceeded) || ae.Phase != PhaseAnonymous {
			t.Fatalf("expected exhausted entry and anonymous phase, got %+v", ae)
		}

		_, err = te.VerifyOTP(ctx, adminEmail, code)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected correct code after exhaustion to be NotFound, got %v", err)
		}
	})
}

func TestVerifyOTPExpired(t *testing.T) {
	te := buildTestEngine(t, BackendMemory, nil)
	ctx := context.Background()

	if _, err := te.Login(ctx, adminEmail, adminPassword); err != nil {
		t.Fatalf("Login: %v", err)
	}
	code := te.sender.code(t, adminEmail)

	te.clock.Advance(2 * time.Minute)
	_, err := te.VerifyOTP(ctx, adminEmail, code)
	if !errors.Is(err, ErrExpired) || !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected expired, got %v", err)
	}

	_, err = te.VerifyOTP(ctx, adminEmail, code)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired entry to be deleted, got %v", err)
	}
}

func TestVerifyOTPRejectsMalformedCode(t *testing.T) {
	te := buildTestEngine(t, BackendMemory, nil)
	ctx := context.Background()

	if _, err := te.Login(ctx, adminEmail, adminPassword); err != nil {
		t.Fatalf("Login: %v", err)
	}

	for _, code := range []string{"", "12345", "1234567", "12a456", "-12345"} {
		_, err := te.VerifyOTP(ctx, adminEmail, code)
		if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrInvalidOTPFormat) {
			t.Fatalf("VerifyOTP(%q): expected validation error, got %v", code, err)
		}
	}

	if _, err := te.VerifyOTP(ctx, adminEmail, te.sender.code(t, adminEmail)); err != nil {
		t.Fatalf("malformed codes must not consume attempts: %v", err)
	}
}

func TestVerifyOTPWithoutLogin(t *testing.T) {
	te := buildTestEngine(t, BackendMemory, nil)

	_, err := te.VerifyOTP(context.Background(), adminEmail, "123456")
	if !errors.Is(err, ErrNotFound) || !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestResendOTPThrottlesAndRotatesCode(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		te := buildTestEngine(t, backend, nil)
		ctx := context.Background()

		if _, err := te.Login(ctx, adminEmail, adminPassword); err != nil {
			t.Fatalf("Login: %v", err)
		}
		first := te.sender.code(t, adminEmail)

		res, err := te.ResendOTP(ctx, adminEmail)
		if err != nil {
			t.Fatalf("ResendOTP: %v", err)
		}
		if res.Message != "New OTP sent successfully" {
			t.Fatalf("unexpected message %q", res.Message)
		}
		second := te.sender.code(t, adminEmail)
		if first != second {
			if _, err := te.VerifyOTP(ctx, adminEmail, first); err == nil {
				t.Fatal("expected superseded code to fail")
			}
		}

		if _, err := te.ResendOTP(ctx, adminEmail); err != nil {
			t.Fatalf("second ResendOTP: %v", err)
		}
		pending := te.sender.code(t, adminEmail)

		_, err = te.ResendOTP(ctx, adminEmail)
		ae := asAuthError(t, err)
		if ae.Kind != KindRateLimited || ae.Message != "Please wait before requesting a new OTP." {
			t.Fatalf("expected throttled resend, got %+v", ae)
		}
		if ae.RetryAfter != 60*time.Second {
			t.Fatalf("expected 60s retry, got %v", ae.RetryAfter)
		}

		if _, err := te.VerifyOTP(ctx, adminEmail, pending); err != nil {
			t.Fatalf("throttled resend must leave pending code usable: %v", err)
		}
	})
}

func TestResendOTPUnknownUser(t *testing.T) {
	te := buildTestEngine(t, BackendMemory, nil)

	_, err := te.ResendOTP(context.Background(), "ghost@example.com")
	if !errors.Is(err, ErrNotFound) || !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user NotFound, got %v", err)
	}
}

func TestCheckAuthLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		te := buildTestEngine(t, backend, nil)
		ctx := context.Background()

		res, err := te.CheckAuth(ctx)
		if err != nil || res.Authenticated || res.Phase != PhaseAnonymous {
			t.Fatalf("expected anonymous without token: %+v err=%v", res, err)
		}

		te.loginAndVerify(t, ctx, userEmail, userPassword)

		te.clock.Advance(10 * time.Minute)
		res, err = te.CheckAuth(ctx)
		if err != nil || !res.Authenticated {
			t.Fatalf("expected authenticated: %+v err=%v", res, err)
		}
		if res.User.Email != userEmail || res.User.Role != userdir.RoleUser {
			t.Fatalf("unexpected user %+v", res.User)
		}

		// refresh moved the absolute deadline, so 25m after creation is fine
		te.clock.Advance(10 * time.Minute)
		res, err = te.CheckAuth(ctx)
		if err != nil || !res.Authenticated {
			t.Fatalf("expected refreshed session to stay valid: %+v err=%v", res, err)
		}

		te.clock.Advance(16 * time.Minute)
		res, err = te.CheckAuth(ctx)
		if err != nil || res.Authenticated {
			t.Fatalf("expected idle session to be anonymous: %+v err=%v", res, err)
		}
		if _, ok, _ := te.client.Get(clientstore.KeyAuthToken); ok {
			t.Fatal("expected persisted token to be cleared")
		}
	})
}

func TestCheckAuthEvictsIdleSession(t *testing.T) {
	te := buildTestEngine(t, BackendMemory, nil)
	ctx := context.Background()

	res := te.loginAndVerify(t, ctx, adminEmail, adminPassword)
	te.clock.Advance(15 * time.Minute)

	check, err := te.CheckAuth(ctx)
	if err != nil || check.Authenticated {
		t.Fatalf("expected anonymous, got %+v err=%v", check, err)
	}
	if _, ok, _ := te.GetSession(ctx, res.Token); ok {
		t.Fatal("expected idle session to be evicted")
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		te := buildTestEngine(t, backend, nil)
		ctx := context.Background()

		res := te.loginAndVerify(t, ctx, adminEmail, adminPassword)

		te.Logout(ctx)
		if _, ok, _ := te.GetSession(ctx, res.Token); ok {
			t.Fatal("expected session removed")
		}
		if _, ok, _ := te.client.Get(clientstore.KeyAuthToken); ok {
			t.Fatal("expected persisted token cleared")
		}

		te.Logout(ctx)
		check, err := te.CheckAuth(ctx)
		if err != nil || check.Authenticated {
			t.Fatalf("expected anonymous after logout: %+v err=%v", check, err)
		}
	})
}

func TestRevokeAllSessionsOnlyTouchesOneUser(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		te := buildTestEngine(t, backend, nil)

		tabA := WithClientStorage(context.Background(), clientstore.NewMemory())
		tabB := WithClientStorage(context.Background(), clientstore.NewMemory())
		other := WithClientStorage(context.Background(), clientstore.NewMemory())

		te.loginAndVerify(t, tabA, adminEmail, adminPassword)
		te.loginAndVerify(t, tabB, adminEmail, adminPassword)
		te.loginAndVerify(t, other, userEmail, userPassword)

		list, err := te.ListSessions(context.Background(), "1")
		if err != nil || len(list) != 2 {
			t.Fatalf("expected 2 admin sessions, got %d err=%v", len(list), err)
		}

		n, err := te.RevokeAllSessions(context.Background(), "1")
		if err != nil || n != 2 {
			t.Fatalf("expected 2 revoked, got %d err=%v", n, err)
		}

		for _, ctx := range []context.Context{tabA, tabB} {
			res, err := te.CheckAuth(ctx)
			if err != nil || res.Authenticated {
				t.Fatalf("expected revoked tab anonymous: %+v err=%v", res, err)
			}
		}
		res, err := te.CheckAuth(other)
		if err != nil || !res.Authenticated {
			t.Fatalf("expected other user unaffected: %+v err=%v", res, err)
		}
	})
}

func TestSessionRecordsClientMetadata(t *testing.T) {
	te := buildTestEngine(t, BackendMemory, nil)
	ctx := WithUserAgent(WithClientIP(context.Background(), "10.1.2.3"), "admin-ui/1.0")

	res := te.loginAndVerify(t, ctx, adminEmail, adminPassword)
	info, ok, err := te.GetSession(ctx, res.Token)
	if err != nil || !ok {
		t.Fatalf("GetSession: ok=%v err=%v", ok, err)
	}
	if info.IPAddress != "10.1.2.3" || info.UserAgent != "admin-ui/1.0" {
		t.Fatalf("unexpected metadata %+v", info)
	}
}

func TestResultExpiryMatchesStoredSession(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		te := buildTestEngine(t, backend, nil)
		ctx := context.Background()

		res := te.loginAndVerify(t, ctx, adminEmail, adminPassword)
		info, ok, err := te.GetSession(ctx, res.Token)
		if err != nil || !ok {
			t.Fatalf("GetSession: ok=%v err=%v", ok, err)
		}
		if !res.ExpiresAt.Equal(info.ExpiresAt) {
			t.Fatalf("verify expiry %v, stored %v", res.ExpiresAt, info.ExpiresAt)
		}

		te.clock.Advance(5 * time.Minute)
		check, err := te.CheckAuth(ctx)
		if err != nil || !check.Authenticated {
			t.Fatalf("expected authenticated: %+v err=%v", check, err)
		}
		info, ok, err = te.GetSession(ctx, res.Token)
		if err != nil || !ok {
			t.Fatalf("GetSession after refresh: ok=%v err=%v", ok, err)
		}
		if !check.ExpiresAt.Equal(info.ExpiresAt) {
			t.Fatalf("check expiry %v, stored %v", check.ExpiresAt, info.ExpiresAt)
		}
		if !check.ExpiresAt.After(res.ExpiresAt) {
			t.Fatalf("expected refresh to extend %v, got %v", res.ExpiresAt, check.ExpiresAt)
		}
	})
}

func TestConcurrentFailuresLockExactlyOnce(t *testing.T) {
	te := buildTestEngine(t, BackendMemory, nil)
	ctx := context.Background()

	const callers = 20
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		invalid     int
		rateLimited int
	)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, err := te.Login(ctx, adminEmail, "Wrong@123")
			mu.Lock()
			defer mu.Unlock()
			switch KindOf(err) {
			case KindInvalidCredential:
				invalid++
			case KindRateLimited:
				rateLimited++
			}
		}()
	}
	wg.Wait()

	if invalid != 5 || rateLimited != callers-5 {
		t.Fatalf("expected 5 invalid and %d rate limited, got %d and %d", callers-5, invalid, rateLimited)
	}
}

func TestLatencyHonoursCancellation(t *testing.T) {
	te := buildTestEngine(t, BackendMemory, func(cfg *Config) {
		cfg.Latency.Login = time.Hour
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := te.Login(ctx, adminEmail, adminPassword)
	if !errors.Is(err, context.DeadlineExceeded) || KindOf(err) != KindInternal {
		t.Fatalf("expected cancelled login, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("latency wait ignored cancellation")
	}
	if te.sender.sends != 0 {
		t.Fatal("cancelled login must not issue a code")
	}
}

func TestOTPDeliveryFailureFailsClosed(t *testing.T) {
	te := buildTestEngine(t, BackendMemory, nil)
	te.sender.fail = errors.New("smtp down")
	ctx := context.Background()

	_, err := te.Login(ctx, adminEmail, adminPassword)
	if KindOf(err) != KindInternal || !errors.Is(err, ErrOTPDelivery) {
		t.Fatalf("expected internal delivery failure, got %v", err)
	}

	_, err = te.VerifyOTP(ctx, adminEmail, "123456")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no pending entry, got %v", err)
	}
	if got := te.MetricsSnapshot().Counters[MetricInternalError]; got != 1 {
		t.Fatalf("expected 1 internal error, got %d", got)
	}
}

func TestRedisOutageFailsClosed(t *testing.T) {
	te := buildTestEngine(t, BackendRedis, nil)
	te.mr.Close()

	_, err := te.Login(context.Background(), adminEmail, adminPassword)
	if !errors.Is(err, ErrInternal) || !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected fail-closed internal error, got %v", err)
	}
	if err := te.Ping(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ping failure, got %v", err)
	}
}

func TestUnlockClearsLockout(t *testing.T) {
	te := buildTestEngine(t, BackendMemory, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = te.Login(ctx, adminEmail, "bad")
	}
	locked, retry, _, err := te.LockStatus(ctx, adminEmail)
	if err != nil || !locked || retry != 15*time.Minute {
		t.Fatalf("expected locked for 15m, locked=%v retry=%v err=%v", locked, retry, err)
	}

	if err := te.Unlock(ctx, adminEmail); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if _, err := te.Login(ctx, adminEmail, adminPassword); err != nil {
		t.Fatalf("expected login after unlock, got %v", err)
	}
}

func TestValidatePasswordUsesConfiguredPolicy(t *testing.T) {
	te := buildTestEngine(t, BackendMemory, func(cfg *Config) {
		cfg.Password.Policy.RequireSymbol = false
	})

	if res := te.ValidatePassword("Abcdefg1"); !res.Valid {
		t.Fatalf("expected valid without symbol, got %v", res.Errors)
	}
	if res := te.ValidatePassword("short"); res.Valid {
		t.Fatal("expected short password to fail")
	}
	if score, label := te.PasswordStrength("Tr0ub4dor&3-horse"); score == 0 || label == "" {
		t.Fatalf("unexpected strength %d %q", score, label)
	}
}

func TestBuilderRejectsMisconfiguration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Backend = BackendRedis
	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected redis backend without client to fail")
	}

	_, rdb := newTestRedis(t)
	if _, err := New().WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected client with memory backend to fail")
	}

	b := New()
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected builder reuse to fail")
	}
}

func TestAuditEventsCarryIDsAndNoSecrets(t *testing.T) {
	sink := NewChannelSink(64)
	te := buildTestEngine(t, BackendMemory, func(cfg *Config) {
		cfg.Audit.Enabled = true
		cfg.Audit.DropIfFull = false
	}, func(b *Builder) {
		b.WithAuditSink(sink)
	})
	ctx := context.Background()

	res := te.loginAndVerify(t, ctx, adminEmail, adminPassword)
	code := te.sender.code(t, adminEmail)
	te.Close()

	seen := map[string]AuditEvent{}
	for len(sink.Events()) > 0 {
		ev := <-sink.Events()
		seen[ev.EventType] = ev
	}

	for _, want := range []string{auditEventOTPIssued, auditEventLoginSuccess, auditEventOTPSuccess, auditEventSessionCreated} {
		ev, ok := seen[want]
		if !ok {
			t.Fatalf("missing audit event %s (saw %v)", want, seen)
		}
		if ev.EventID == "" || ev.Timestamp.IsZero() {
			t.Fatalf("event %s missing id or timestamp", want)
		}
	}
	created := seen[auditEventSessionCreated]
	if created.SessionID == "" || created.SessionID == res.Token {
		t.Fatalf("expected hashed session reference, got %q", created.SessionID)
	}
	if created.UserID != "1" {
		t.Fatalf("expected user id on session event, got %q", created.UserID)
	}
	for _, ev := range seen {
		for _, v := range ev.Metadata {
			if v == code {
				t.Fatal("otp code leaked into audit metadata")
			}
		}
	}
}
