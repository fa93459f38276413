package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/adminAuth"
	"github.com/MrEthical07/adminAuth/metrics/export/prometheus"
	"github.com/MrEthical07/adminAuth/middleware"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the maintenance sweeps and expose metrics",
	Long: `Run the periodic limiter, OTP and session sweeps until interrupted,
logging audit events and serving Prometheus metrics on metrics.addr.

Endpoints:
  GET /metrics  Prometheus exposition
  GET /health   always 200 while the process runs
  GET /ready    200 when the store backend answers
  GET /v1/me    the signed-in user for a bearer session token`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default: metrics.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{audit: true})
	if err != nil {
		return err
	}
	defer a.close()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.cfg.Metrics.Addr
	}

	metricsHandler, err := prometheus.NewCollector(a.engine).Handler()
	if err != nil {
		return fmt.Errorf("failed to create metrics handler: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(a.engine, metricsHandler),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.engine.RunMaintenance(ctx)
	})
	g.Go(func() error {
		a.logger.Info("metrics server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newRouter(engine *adminAuth.Engine, metrics http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := engine.Ping(ctx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	r.Handle("/metrics", metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Guard(engine))
		r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
			u, _ := middleware.UserFromContext(r.Context())
			w.Header().Set("Content-Type", "application/json")
			_ = printJSON(w, u)
		})
	})
	return r
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = printJSON(w, map[string]string{"status": status})
}
