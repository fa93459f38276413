// Package config loads the adminauthctl configuration from a YAML file and
// ADMINAUTH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/MrEthical07/adminAuth"
)

// EnvPrefix prefixes every environment override, e.g.
// ADMINAUTH_ENGINE_RATE_LIMIT_MAX_LOGIN_ATTEMPTS.
const EnvPrefix = "ADMINAUTH"

// RedisMini selects an embedded miniredis instead of a real server.
const RedisMini = "mini"

// Config is everything adminauthctl needs to build an engine and a client.
type Config struct {
	Engine     adminAuth.Config `mapstructure:"engine"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Directory  DirectoryConfig  `mapstructure:"directory"`
	Client     ClientConfig     `mapstructure:"client"`
	Projection ProjectionConfig `mapstructure:"projection"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsServer    `mapstructure:"metrics"`
	// DemoLatency applies the prototype's per-operation delays.
	DemoLatency bool `mapstructure:"demo_latency"`
}

// RedisConfig is used when engine.store.backend is "redis".
type RedisConfig struct {
	// Addr is host:port, or "mini" for an in-process server.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// DirectoryConfig selects where accounts are looked up.
type DirectoryConfig struct {
	Source      string `mapstructure:"source" validate:"oneof=demo yaml postgres"`
	Path        string `mapstructure:"path" validate:"required_if=Source yaml"`
	DatabaseURL string `mapstructure:"database_url" validate:"required_if=Source postgres"`
}

// ClientConfig sets where the CLI keeps the token and auth projection.
type ClientConfig struct {
	StatePath string `mapstructure:"state_path" validate:"required"`
}

// ProjectionConfig configures signing of the persisted auth projection.
type ProjectionConfig struct {
	Secret string        `mapstructure:"secret" validate:"omitempty,min=32"`
	TTL    time.Duration `mapstructure:"ttl" validate:"gt=0"`
	Issuer string        `mapstructure:"issuer"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// MetricsServer configures the /metrics listener of the serve command.
type MetricsServer struct {
	Addr string `mapstructure:"addr"`
}

var fileValidator = validator.New(validator.WithRequiredStructEnabled())

// Load reads path (or adminauth.yaml from the usual locations when path is
// empty), applies environment overrides and validates the result. A missing
// config file is not an error when path is empty.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("adminauth")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/adminauth")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.DemoLatency {
		cfg.Engine.Latency = adminAuth.DemoLatency()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the CLI-level fields and then the engine config.
func (c *Config) Validate() error {
	if err := fileValidator.Struct(struct {
		Redis      RedisConfig
		Directory  DirectoryConfig
		Client     ClientConfig
		Projection ProjectionConfig
		Log        LogConfig
	}{c.Redis, c.Directory, c.Client, c.Projection, c.Log}); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Engine.Store.Backend == adminAuth.BackendRedis && c.Redis.Addr == "" {
		return errors.New("invalid config: redis.addr is required for the redis backend")
	}
	return c.Engine.Validate()
}

func setDefaults(v *viper.Viper) {
	d := adminAuth.DefaultConfig()

	v.SetDefault("engine.rate_limit.max_login_attempts", d.RateLimit.MaxLoginAttempts)
	v.SetDefault("engine.rate_limit.login_window", d.RateLimit.LoginWindow)
	v.SetDefault("engine.rate_limit.lockout_duration", d.RateLimit.LockoutDuration)
	v.SetDefault("engine.rate_limit.retention", d.RateLimit.Retention)

	v.SetDefault("engine.otp.digits", d.OTP.Digits)
	v.SetDefault("engine.otp.ttl", d.OTP.TTL)
	v.SetDefault("engine.otp.max_attempts", d.OTP.MaxAttempts)
	v.SetDefault("engine.otp.resend_max", d.OTP.ResendMax)
	v.SetDefault("engine.otp.resend_cooldown", d.OTP.ResendCooldown)

	v.SetDefault("engine.session.token_lifetime", d.Session.TokenLifetime)
	v.SetDefault("engine.session.idle_timeout", d.Session.IdleTimeout)
	v.SetDefault("engine.session.token_bytes", d.Session.TokenBytes)

	v.SetDefault("engine.password.hasher", d.Password.Hasher)
	v.SetDefault("engine.password.policy.min_length", d.Password.Policy.MinLength)
	v.SetDefault("engine.password.policy.require_uppercase", d.Password.Policy.RequireUppercase)
	v.SetDefault("engine.password.policy.require_lowercase", d.Password.Policy.RequireLowercase)
	v.SetDefault("engine.password.policy.require_digit", d.Password.Policy.RequireDigit)
	v.SetDefault("engine.password.policy.require_symbol", d.Password.Policy.RequireSymbol)
	v.SetDefault("engine.password.policy.deny_common", d.Password.Policy.DenyCommon)
	v.SetDefault("engine.password.argon2.memory", d.Password.Argon2.Memory)
	v.SetDefault("engine.password.argon2.time", d.Password.Argon2.Time)
	v.SetDefault("engine.password.argon2.parallelism", d.Password.Argon2.Parallelism)
	v.SetDefault("engine.password.argon2.salt_length", d.Password.Argon2.SaltLength)
	v.SetDefault("engine.password.argon2.key_length", d.Password.Argon2.KeyLength)

	v.SetDefault("engine.store.backend", d.Store.Backend)
	v.SetDefault("engine.store.rate_limit_prefix", d.Store.RateLimitPrefix)
	v.SetDefault("engine.store.otp_prefix", d.Store.OTPPrefix)
	v.SetDefault("engine.store.session_prefix", d.Store.SessionPrefix)

	v.SetDefault("engine.latency.login", d.Latency.Login)
	v.SetDefault("engine.latency.verify_otp", d.Latency.VerifyOTP)
	v.SetDefault("engine.latency.resend_otp", d.Latency.ResendOTP)
	v.SetDefault("engine.latency.check_auth", d.Latency.CheckAuth)
	v.SetDefault("engine.latency.logout", d.Latency.Logout)

	v.SetDefault("engine.maintenance.rate_limit_interval", d.Maintenance.RateLimitInterval)
	v.SetDefault("engine.maintenance.session_interval", d.Maintenance.SessionInterval)
	v.SetDefault("engine.maintenance.otp_interval", d.Maintenance.OTPInterval)

	v.SetDefault("engine.audit.enabled", d.Audit.Enabled)
	v.SetDefault("engine.audit.buffer_size", d.Audit.BufferSize)
	v.SetDefault("engine.audit.drop_if_full", d.Audit.DropIfFull)

	v.SetDefault("engine.metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("engine.metrics.enable_latency_histograms", d.Metrics.EnableLatencyHistograms)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("directory.source", "demo")
	v.SetDefault("directory.path", "")
	v.SetDefault("directory.database_url", "")

	v.SetDefault("client.state_path", ".adminauth/state.json")

	v.SetDefault("projection.secret", "")
	v.SetDefault("projection.ttl", "24h")
	v.SetDefault("projection.issuer", "adminauth")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("metrics.addr", ":9464")

	v.SetDefault("demo_latency", false)
}
