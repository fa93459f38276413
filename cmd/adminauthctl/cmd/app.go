package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/adminAuth"
	"github.com/MrEthical07/adminAuth/clientstore"
	"github.com/MrEthical07/adminAuth/controller"
	"github.com/MrEthical07/adminAuth/internal/config"
	"github.com/MrEthical07/adminAuth/jwt"
	"github.com/MrEthical07/adminAuth/userdir"
)

// keyPendingEmail remembers the email whose password step passed, so verify
// and resend work from a later invocation.
const keyPendingEmail = "pending_email"

type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	engine  *adminAuth.Engine
	ctrl    *controller.Controller
	storage *clientstore.File
	closers []func()
}

type appOptions struct {
	audit bool
}

// newApp loads the config and wires the engine, the client storage and the
// controller. The caller must call close.
func newApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if redisAddr != "" {
		cfg.Redis.Addr = redisAddr
		cfg.Engine.Store.Backend = adminAuth.BackendRedis
	}

	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		storage: clientstore.NewFile(cfg.Client.StatePath),
	}

	dir, err := a.openDirectory(cmd.Context())
	if err != nil {
		a.close()
		return nil, err
	}

	b := adminAuth.New().
		WithConfig(cfg.Engine).
		WithDirectory(dir).
		WithClientStorage(a.storage).
		WithOTPSender(otpPrinter{w: cmd.ErrOrStderr()}).
		WithLogger(logger)
	if opts.audit {
		b.WithAuditSink(adminAuth.NewSlogSink(logger))
	}

	if cfg.Engine.Store.Backend == adminAuth.BackendRedis {
		rdb, err := a.openRedis()
		if err != nil {
			a.close()
			return nil, err
		}
		b.WithRedis(rdb)
	}

	engine, err := b.Build()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}
	a.engine = engine
	a.closers = append(a.closers, engine.Close)

	var signer *jwt.Manager
	if cfg.Projection.Secret != "" {
		signer, err = jwt.NewManager(jwt.Config{
			TTL:           cfg.Projection.TTL,
			SigningMethod: jwt.MethodHS256,
			PrivateKey:    []byte(cfg.Projection.Secret),
			Issuer:        cfg.Projection.Issuer,
			Leeway:        5 * time.Second,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to create projection signer: %w", err)
		}
	}

	a.ctrl, err = controller.New(engine, controller.Config{
		Storage: a.storage,
		Signer:  signer,
		Logger:  logger,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) openDirectory(ctx context.Context) (userdir.Directory, error) {
	switch a.cfg.Directory.Source {
	case "yaml":
		hasher, err := a.cfg.Engine.Password.NewHasher()
		if err != nil {
			return nil, err
		}
		dir, err := userdir.LoadYAMLFile(a.cfg.Directory.Path, a.cfg.Engine.Password.Policy, hasher)
		if err != nil {
			return nil, fmt.Errorf("failed to load users: %w", err)
		}
		return dir, nil
	case "postgres":
		pg, err := userdir.NewPostgres(ctx, a.cfg.Directory.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open user directory: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		return pg, nil
	default:
		return userdir.Demo(), nil
	}
}

func (a *app) openRedis() (redis.UniversalClient, error) {
	addr := a.cfg.Redis.Addr
	if addr == config.RedisMini {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("failed to start miniredis: %w", err)
		}
		a.closers = append(a.closers, mr.Close)
		addr = mr.Addr()
		a.logger.Info("using embedded redis", slog.String("addr", addr))
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	return rdb, nil
}

// ctx returns ctx carrying the CLI's client storage.
func (a *app) ctx(ctx context.Context) context.Context {
	return adminAuth.WithClientStorage(ctx, a.storage)
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// otpPrinter shows the code on the terminal. The CLI has no mail or SMS
// channel of its own.
type otpPrinter struct {
	w io.Writer
}

func (p otpPrinter) SendOTP(_ context.Context, email, code string, expiresAt time.Time) error {
	_, err := fmt.Fprintf(p.w, "verification code for %s: %s (expires %s)\n",
		email, code, expiresAt.Format(time.Kitchen))
	return err
}
