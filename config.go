package adminAuth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/MrEthical07/adminAuth/internal/rate"
	"github.com/MrEthical07/adminAuth/password"
	"github.com/MrEthical07/adminAuth/session"
)

// Config is the static configuration of an [Engine]. It is loaded once at
// startup and treated as immutable after [Builder.Build].
type Config struct {
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	OTP         OTPConfig         `mapstructure:"otp"`
	Session     SessionConfig     `mapstructure:"session"`
	Password    PasswordConfig    `mapstructure:"password"`
	Store       StoreConfig       `mapstructure:"store"`
	Latency     LatencyConfig     `mapstructure:"latency"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig bounds password attempts per email.
type RateLimitConfig struct {
	MaxLoginAttempts int           `mapstructure:"max_login_attempts" validate:"gte=1,lte=100"`
	LoginWindow      time.Duration `mapstructure:"login_window" validate:"gt=0"`
	LockoutDuration  time.Duration `mapstructure:"lockout_duration" validate:"gt=0"`
	// Retention is how long idle limiter entries survive before cleanup.
	Retention time.Duration `mapstructure:"retention" validate:"gt=0"`
}

func (c RateLimitConfig) loginPolicy() rate.Policy {
	return rate.Policy{
		MaxAttempts: c.MaxLoginAttempts,
		Window:      c.LoginWindow,
		Lockout:     c.LockoutDuration,
	}
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls the second factor.
type OTPConfig struct {
	Digits      int           `mapstructure:"digits" validate:"gte=4,lte=10"`
	TTL         time.Duration `mapstructure:"ttl" validate:"gt=0"`
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1,lte=20"`
	// ResendMax requests are allowed per ResendCooldown window.
	ResendMax      int           `mapstructure:"resend_max" validate:"gte=1"`
	ResendCooldown time.Duration `mapstructure:"resend_cooldown" validate:"gt=0"`
}

func (c OTPConfig) resendPolicy() rate.Policy {
	return rate.Policy{
		MaxAttempts: c.ResendMax,
		Window:      c.ResendCooldown,
		Lockout:     c.ResendCooldown,
	}
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetimes.
type SessionConfig struct {
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	TokenBytes    int           `mapstructure:"token_bytes" validate:"gte=16,lte=128"`
}

func (c SessionConfig) store() session.Config {
	return session.Config{
		TokenLifetime: c.TokenLifetime,
		IdleTimeout:   c.IdleTimeout,
		TokenBytes:    c.TokenBytes,
	}
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the policy used by [Engine.ValidatePassword] and
// the hasher used for seeded accounts.
type PasswordConfig struct {
	Policy password.Policy `mapstructure:"policy"`
	// Hasher is "sha256" or "argon2". Stored hashes are verified by their
	// own encoding regardless of this setting.
	Hasher string          `mapstructure:"hasher" validate:"oneof=sha256 argon2"`
	Argon2 password.Config `mapstructure:"argon2"`
}

// NewHasher returns the hasher selected by c.
func (c PasswordConfig) NewHasher() (password.Hasher, error) {
	if c.Hasher == "argon2" {
		return password.NewArgon2(c.Argon2)
	}
	return password.SHA256{}, nil
}

/*
====================================
STORE CONFIG
====================================
*/

// Store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// StoreConfig selects where limiter, OTP and session state lives.
type StoreConfig struct {
	Backend         string `mapstructure:"backend" validate:"oneof=memory redis"`
	RateLimitPrefix string `mapstructure:"rate_limit_prefix" validate:"required,excludes=:"`
	OTPPrefix       string `mapstructure:"otp_prefix" validate:"required,excludes=:"`
	SessionPrefix   string `mapstructure:"session_prefix" validate:"required,excludes=:"`
}

/*
====================================
LATENCY CONFIG
====================================
*/

// LatencyConfig adds a fixed delay before each operation. Zero disables it.
type LatencyConfig struct {
	Login     time.Duration `mapstructure:"login" validate:"gte=0"`
	VerifyOTP time.Duration `mapstructure:"verify_otp" validate:"gte=0"`
	ResendOTP time.Duration `mapstructure:"resend_otp" validate:"gte=0"`
	CheckAuth time.Duration `mapstructure:"check_auth" validate:"gte=0"`
	Logout    time.Duration `mapstructure:"logout" validate:"gte=0"`
}

// DemoLatency returns the delays of the mock API the admin panel was
// prototyped against.
func DemoLatency() LatencyConfig {
	return LatencyConfig{
		Login:     1000 * time.Millisecond,
		VerifyOTP: 800 * time.Millisecond,
		ResendOTP: 500 * time.Millisecond,
		CheckAuth: 300 * time.Millisecond,
		Logout:    200 * time.Millisecond,
	}
}

/*
====================================
MAINTENANCE CONFIG
====================================
*/

// MaintenanceConfig sets the sweep intervals used by [Engine.RunMaintenance].
type MaintenanceConfig struct {
	RateLimitInterval time.Duration `mapstructure:"rate_limit_interval" validate:"gt=0"`
	SessionInterval   time.Duration `mapstructure:"session_interval" validate:"gt=0"`
	OTPInterval       time.Duration `mapstructure:"otp_interval" validate:"gt=0"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size" validate:"gte=0"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the admin panel defaults: five login attempts, a
// fifteen minute lockout, three OTP attempts, six digit codes valid for two
// minutes, and thirty minute sessions with a fifteen minute idle timeout.
func DefaultConfig() Config {
	return Config{
		RateLimit: RateLimitConfig{
			MaxLoginAttempts: 5,
			LoginWindow:      15 * time.Minute,
			LockoutDuration:  15 * time.Minute,
			Retention:        rate.DefaultRetention,
		},
		OTP: OTPConfig{
			Digits:         6,
			TTL:            2 * time.Minute,
			MaxAttempts:    3,
			ResendMax:      3,
			ResendCooldown: 60 * time.Second,
		},
		Session: SessionConfig{
			TokenLifetime: session.DefaultTokenLifetime,
			IdleTimeout:   session.DefaultIdleTimeout,
			TokenBytes:    session.DefaultTokenBytes,
		},
		Password: PasswordConfig{
			Policy: password.DefaultPolicy(),
			Hasher: "sha256",
			Argon2: password.DefaultConfig(),
		},
		Store: StoreConfig{
			Backend:         BackendMemory,
			RateLimitPrefix: "arl",
			OTPPrefix:       "aotp",
			SessionPrefix:   "as",
		},
		Maintenance: MaintenanceConfig{
			RateLimitInterval: time.Hour,
			SessionInterval:   5 * time.Minute,
			OTPInterval:       time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and the rules that span fields.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %s", formatValidationErrors(verrs))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Session.IdleTimeout > c.Session.TokenLifetime {
		return errors.New("Session IdleTimeout must be <= TokenLifetime")
	}
	if c.RateLimit.Retention < c.RateLimit.LockoutDuration {
		return errors.New("RateLimit Retention must be >= LockoutDuration")
	}
	if c.Password.Hasher == "argon2" {
		if err := c.Password.Argon2.Validate(); err != nil {
			return err
		}
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}
	return nil
}

func formatValidationErrors(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
