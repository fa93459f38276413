package adminAuth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/adminAuth/clientstore"
	"github.com/MrEthical07/adminAuth/internal/rate"
	"github.com/MrEthical07/adminAuth/internal/stores"
	"github.com/MrEthical07/adminAuth/session"
	"github.com/MrEthical07/adminAuth/userdir"
)

// Builder wires an [Engine]. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	directory userdir.Directory
	client    clientstore.Storage
	sender    OTPSender
	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis supplies the client used when Store.Backend is "redis".
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDirectory sets the account lookup. Defaults to [userdir.Demo].
func (b *Builder) WithDirectory(d userdir.Directory) *Builder {
	b.directory = d
	return b
}

// WithClientStorage sets where the session token is persisted between
// runs. Defaults to an in-memory store.
func (b *Builder) WithClientStorage(s clientstore.Storage) *Builder {
	b.client = s
	return b
}

// WithOTPSender sets the code delivery hook. Defaults to [LogSender].
func (b *Builder) WithOTPSender(s OTPSender) *Builder {
	b.sender = s
	return b
}

// WithAuditSink sets the audit destination. Audit.Enabled must also be set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to discarding output.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides time.Now for every store the engine builds.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the operation latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and constructs the stores.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch {
	case cfg.Store.Backend == BackendRedis && b.redis == nil:
		return nil, errors.New("redis backend requires redis client")
	case cfg.Store.Backend == BackendMemory && b.redis != nil:
		return nil, errors.New("redis client supplied but store backend is memory")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With(slog.String("component", "adminauth"))

	directory := b.directory
	if directory == nil {
		directory = userdir.Demo()
	}
	client := b.client
	if client == nil {
		client = clientstore.NewMemory()
	}
	sender := b.sender
	if sender == nil {
		sender = LogSender{Logger: logger}
	}

	e := &Engine{
		config:    cfg,
		users:     directory,
		client:    client,
		sender:    sender,
		logger:    logger,
		now:       now,
		metrics:   NewMetrics(cfg.Metrics),
		policy:    cfg.Password.Policy,
		codeRule:  fmt.Sprintf("required,number,len=%d", cfg.OTP.Digits),
		redis:     b.redis,
		startedAt: now(),
	}

	sessCfg := cfg.Session.store()
	if cfg.Store.Backend == BackendRedis {
		e.limiter = rate.NewRedis(b.redis, cfg.Store.RateLimitPrefix, cfg.RateLimit.Retention, now)
		e.otps = stores.NewRedisOTPStore(b.redis, cfg.Store.OTPPrefix, now)
		e.sessions = session.NewRedisStore(b.redis, cfg.Store.SessionPrefix, sessCfg, now)
	} else {
		e.limiter = rate.NewMemory(now)
		e.otps = stores.NewMemoryOTPStore(now)
		e.sessions = session.NewMemoryStore(sessCfg, now)
	}

	e.audit = newAuditDispatcher(cfg.Audit, b.auditSink, now, logger)

	b.built = true
	return e, nil
}
