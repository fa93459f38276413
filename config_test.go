package adminAuth

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	if cfg.RateLimit.MaxLoginAttempts != 5 || cfg.RateLimit.LockoutDuration != 15*time.Minute {
		t.Fatalf("unexpected login defaults: %+v", cfg.RateLimit)
	}
	if cfg.OTP.MaxAttempts != 3 || cfg.OTP.Digits != 6 || cfg.OTP.TTL != 2*time.Minute || cfg.OTP.ResendCooldown != time.Minute {
		t.Fatalf("unexpected otp defaults: %+v", cfg.OTP)
	}
	if cfg.Session.TokenLifetime != 30*time.Minute || cfg.Session.IdleTimeout != 15*time.Minute {
		t.Fatalf("unexpected session defaults: %+v", cfg.Session)
	}
	if cfg.Password.Policy.MinLength != 8 || !cfg.Password.Policy.DenyCommon {
		t.Fatalf("unexpected password defaults: %+v", cfg.Password.Policy)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
		wantField string
	}{
		{
			name:      "demo latency valid",
			mutate:    func(c *Config) { c.Latency = DemoLatency() },
			wantValid: true,
		},
		{
			name:      "negative latency invalid",
			mutate:    func(c *Config) { c.Latency.Login = -time.Second },
			wantField: "Latency.Login",
		},
		{
			name:      "otp digits below range",
			mutate:    func(c *Config) { c.OTP.Digits = 3 },
			wantField: "OTP.Digits",
		},
		{
			name:      "otp digits above range",
			mutate:    func(c *Config) { c.OTP.Digits = 11 },
			wantField: "OTP.Digits",
		},
		{
			name:      "zero login attempts",
			mutate:    func(c *Config) { c.RateLimit.MaxLoginAttempts = 0 },
			wantField: "RateLimit.MaxLoginAttempts",
		},
		{
			name:      "zero lockout",
			mutate:    func(c *Config) { c.RateLimit.LockoutDuration = 0 },
			wantField: "RateLimit.LockoutDuration",
		},
		{
			name:      "unknown backend",
			mutate:    func(c *Config) { c.Store.Backend = "etcd" },
			wantField: "Store.Backend",
		},
		{
			name:      "prefix with separator",
			mutate:    func(c *Config) { c.Store.SessionPrefix = "a:s" },
			wantField: "Store.SessionPrefix",
		},
		{
			name:      "unknown hasher",
			mutate:    func(c *Config) { c.Password.Hasher = "md5" },
			wantField: "Password.Hasher",
		},
		{
			name:      "short tokens",
			mutate:    func(c *Config) { c.Session.TokenBytes = 8 },
			wantField: "Session.TokenBytes",
		},
		{
			name: "idle longer than lifetime",
			mutate: func(c *Config) {
				c.Session.IdleTimeout = time.Hour
			},
		},
		{
			name: "retention shorter than lockout",
			mutate: func(c *Config) {
				c.RateLimit.Retention = time.Minute
			},
		},
		{
			name: "argon2 below floor",
			mutate: func(c *Config) {
				c.Password.Hasher = "argon2"
				c.Password.Argon2.Memory = 1024
			},
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
		},
		{
			name: "histograms without metrics",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.EnableLatencyHistograms = true
			},
		},
		{
			name: "argon2 defaults valid",
			mutate: func(c *Config) {
				c.Password.Hasher = "argon2"
			},
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected invalid config")
			}
			if tt.wantField != "" && !strings.Contains(err.Error(), tt.wantField) {
				t.Fatalf("expected error to name %s, got %v", tt.wantField, err)
			}
		})
	}
}

func TestPasswordConfigNewHasher(t *testing.T) {
	cfg := DefaultConfig()
	h, err := cfg.Password.NewHasher()
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	encoded, err := h.Hash("Admin@123")
	if err != nil || len(encoded) != 64 {
		t.Fatalf("expected sha256 hex digest, got %q err=%v", encoded, err)
	}

	cfg.Password.Hasher = "argon2"
	cfg.Password.Argon2.Memory = 8 * 1024
	cfg.Password.Argon2.Time = 1
	h, err = cfg.Password.NewHasher()
	if err != nil {
		t.Fatalf("NewHasher argon2: %v", err)
	}
	encoded, err = h.Hash("Admin@123")
	if err != nil || !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("expected PHC string, got %q err=%v", encoded, err)
	}
}
