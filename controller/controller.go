// Package controller holds the client-side auth state of the admin panel:
// which screen to show, the signed-in user, and the last error message.
// It drives an [adminAuth.Engine] (or anything implementing [Service]) and
// publishes every state change to subscribers.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/MrEthical07/adminAuth"
	"github.com/MrEthical07/adminAuth/clientstore"
	"github.com/MrEthical07/adminAuth/jwt"
)

// Messages shown when the service fails without a user-facing message.
const (
	MsgUnexpected   = "An unexpected error occurred"
	MsgResendFailed = "Failed to resend OTP"
)

// Service is the subset of [adminAuth.Engine] the controller drives.
type Service interface {
	Login(ctx context.Context, email, password string) (*adminAuth.LoginResult, error)
	VerifyOTP(ctx context.Context, email, code string) (*adminAuth.VerifyResult, error)
	ResendOTP(ctx context.Context, email string) (*adminAuth.ResendResult, error)
	CheckAuth(ctx context.Context) (*adminAuth.CheckAuthResult, error)
	Logout(ctx context.Context)
}

var _ Service = (*adminAuth.Engine)(nil)

// Config wires a Controller. Storage defaults to an in-memory store. Without
// a Signer the projection is not persisted and Restore is a no-op.
type Config struct {
	Storage clientstore.Storage
	Signer  *jwt.Manager
	Logger  *slog.Logger
}

// Controller is safe for concurrent use. Operations do not serialize against
// each other; each one applies its own state transitions atomically.
type Controller struct {
	svc     Service
	storage clientstore.Storage
	signer  *jwt.Manager
	logger  *slog.Logger

	mu     sync.Mutex
	state  State
	subs   map[uint64]chan State
	nextID uint64
}

// New returns a Controller in the loading state.
func New(svc Service, cfg Config) (*Controller, error) {
	if svc == nil {
		return nil, errors.New("controller: nil service")
	}
	if cfg.Storage == nil {
		cfg.Storage = clientstore.NewMemory()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		svc:     svc,
		storage: cfg.Storage,
		signer:  cfg.Signer,
		logger:  cfg.Logger,
		state:   State{IsLoading: true},
		subs:    make(map[uint64]chan State),
	}, nil
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// View selects the screen for the current state.
func (c *Controller) View() View {
	return c.Snapshot().View()
}

// Subscribe returns a channel that receives the current state and then every
// change. Slow subscribers only see the latest state. cancel closes the
// channel and is safe to call more than once.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	ch <- c.state.clone()
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

// update applies fn under the lock, publishes the result and persists the
// projection when the user or authenticated flag changed.
func (c *Controller) update(fn func(s *State)) State {
	c.mu.Lock()
	before := c.state
	fn(&c.state)
	after := c.publishLocked()
	c.mu.Unlock()

	if before.IsAuthenticated != after.IsAuthenticated || !sameUser(before.User, after.User) {
		c.persist(after)
	}
	return after
}

// publishLocked replaces any unread state in each subscriber channel with
// the current one. c.mu must be held.
func (c *Controller) publishLocked() State {
	s := c.state.clone()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
	return s
}

func (c *Controller) withStorage(ctx context.Context) context.Context {
	return adminAuth.WithClientStorage(ctx, c.storage)
}

// Login runs the password step. On success the state enters the OTP step
// for email.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	c.update(func(s *State) {
		s.IsLoading = true
		s.Error = ""
	})

	res, err := c.svc.Login(c.withStorage(ctx), email, password)
	if err != nil {
		c.fail(ctx, "login", err, MsgUnexpected)
		return err
	}

	c.update(func(s *State) {
		s.OTPStep = res.RequiresOTP
		s.TempEmail = email
		s.IsLoading = false
	})
	return nil
}

// VerifyOTP submits code for the pending email. On success the user is
// signed in and the OTP step ends.
func (c *Controller) VerifyOTP(ctx context.Context, code string) error {
	email := c.Snapshot().TempEmail
	c.update(func(s *State) {
		s.IsLoading = true
		s.Error = ""
	})

	res, err := c.svc.VerifyOTP(c.withStorage(ctx), email, code)
	if err != nil {
		c.fail(ctx, "verify_otp", err, MsgUnexpected)
		return err
	}

	user := res.User
	c.update(func(s *State) {
		s.User = &user
		s.IsAuthenticated = true
		s.IsLoading = false
		s.OTPStep = false
		s.TempEmail = ""
	})
	return nil
}

// ResendOTP asks for a new code for the pending email. It does nothing
// outside the OTP step.
func (c *Controller) ResendOTP(ctx context.Context) error {
	email := c.Snapshot().TempEmail
	if email == "" {
		return nil
	}
	c.update(func(s *State) {
		s.IsLoading = true
		s.Error = ""
	})

	if _, err := c.svc.ResendOTP(c.withStorage(ctx), email); err != nil {
		c.fail(ctx, "resend_otp", err, MsgResendFailed)
		return err
	}
	c.update(func(s *State) { s.IsLoading = false })
	return nil
}

// Logout ends the session and resets the state to anonymous.
func (c *Controller) Logout(ctx context.Context) {
	c.svc.Logout(c.withStorage(ctx))
	c.update(func(s *State) {
		*s = State{}
	})
}

// CheckAuth asks the service whether the persisted token is still valid.
// Any failure leaves the state anonymous.
func (c *Controller) CheckAuth(ctx context.Context) error {
	c.update(func(s *State) { s.IsLoading = true })

	res, err := c.svc.CheckAuth(c.withStorage(ctx))
	if err != nil {
		c.logger.WarnContext(ctx, "auth check failed", slog.Any("error", err))
	}
	if err != nil || !res.Authenticated {
		c.update(func(s *State) {
			s.User = nil
			s.IsAuthenticated = false
			s.IsLoading = false
		})
		return err
	}

	user := res.User
	c.update(func(s *State) {
		s.User = &user
		s.IsAuthenticated = true
		s.IsLoading = false
	})
	return nil
}

// ResumeOTPStep re-enters the OTP step for email, whose password step
// passed in an earlier process.
func (c *Controller) ResumeOTPStep(email string) {
	c.update(func(s *State) {
		s.OTPStep = true
		s.TempEmail = email
		s.IsLoading = false
		s.Error = ""
	})
}

// ResetOTPStep abandons the pending OTP step and returns to the login form.
func (c *Controller) ResetOTPStep() {
	c.update(func(s *State) {
		s.OTPStep = false
		s.TempEmail = ""
		s.IsLoading = false
	})
}

// ClearError drops the current error message.
func (c *Controller) ClearError() {
	c.update(func(s *State) { s.Error = "" })
}

// fail records err's user-facing message, or fallback when err is not an
// *adminAuth.AuthError or is internal. An error that puts the flow back in
// PhaseAnonymous also ends the OTP step.
func (c *Controller) fail(ctx context.Context, op string, err error, fallback string) {
	msg := fallback
	var ae *adminAuth.AuthError
	if errors.As(err, &ae) && ae.Kind != adminAuth.KindInternal && ae.Message != "" {
		msg = ae.Message
	} else {
		c.logger.ErrorContext(ctx, "auth operation failed",
			slog.String("op", op),
			slog.Any("error", err),
		)
	}
	anonymous := ae != nil && ae.Phase == adminAuth.PhaseAnonymous
	c.update(func(s *State) {
		s.Error = msg
		s.IsLoading = false
		if anonymous {
			s.OTPStep = false
			s.TempEmail = ""
		}
	})
}
