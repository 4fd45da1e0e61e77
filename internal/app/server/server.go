package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/auth"
	"paydesk/internal/domain/payroll"
	"paydesk/internal/platform/config"
	"paydesk/internal/platform/crypto"
	"paydesk/internal/platform/db"
	"paydesk/internal/platform/logging"
	"paydesk/internal/platform/metrics"
	audithandler "paydesk/internal/transport/http/handlers/audit"
	payrollhandler "paydesk/internal/transport/http/handlers/payroll"
	"paydesk/internal/transport/http/middleware"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps is everything the router needs. Metrics and Idempotency may be nil.
type Deps struct {
	Config      config.Config
	Logger      *slog.Logger
	DB          Pinger
	Payroll     *payroll.Service
	Audit       audit.Recorder
	AuditEvents audithandler.EventReader
	Metrics     *metrics.Collector
	Idempotency *middleware.Idempotency
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	perms := auth.NewRolePermissionStore()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Logger(deps.Logger))
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	if deps.Metrics != nil {
		router.Use(middleware.Metrics(deps.Metrics))
	}
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if deps.DB == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}
		if err := deps.DB.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if deps.Metrics != nil && cfg.MetricsEnabled {
		router.Handle("/metrics", deps.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

		payrollHandler := payrollhandler.NewHandler(deps.Payroll, deps.Audit, perms, deps.Idempotency, cfg.RunTimeout)
		payrollHandler.RegisterRoutes(r)

		if deps.AuditEvents != nil {
			auditHandler := audithandler.NewHandler(deps.AuditEvents, perms)
			auditHandler.RegisterRoutes(r)
		}
	})

	return router
}

// Run wires the production dependencies and serves until SIGINT or SIGTERM.
func Run() error {
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.Environment, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db connect failed: %w", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			return fmt.Errorf("seed failed: %w", err)
		}
	}

	formatter, err := payroll.NewCurrencyFormatter(cfg.CurrencyCode, cfg.CurrencySymbol)
	if err != nil {
		return fmt.Errorf("currency formatter: %w", err)
	}
	sealer, err := crypto.New(cfg.PayslipEncryptionKey)
	if err != nil {
		return fmt.Errorf("payslip encryption: %w", err)
	}
	collector := metrics.New()
	auditService := audit.New(pool)
	payrollService := payroll.NewService(
		payroll.NewStore(pool),
		formatter,
		collector,
		payroll.NewPayslipArchive(cfg.PayslipDir, sealer),
	)

	router := NewRouter(Deps{
		Config:      cfg,
		Logger:      logger,
		DB:          pool,
		Payroll:     payrollService,
		Audit:       auditService,
		AuditEvents: auditService,
		Metrics:     collector,
		Idempotency: middleware.NewIdempotency(middleware.NewPostgresIdempotencyRepo(pool, cfg.IdempotencyRetention)),
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RunTimeout + 30*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("paydesk server listening", "addr", cfg.Addr, "env", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down", "timeout", cfg.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
