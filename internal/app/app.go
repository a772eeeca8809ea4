// Package app wires configuration, infrastructure connections, and domain
// packages into the running gateway process, for both the "api" and
// "worker" runtime modes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/nexusgate/gateway/internal/audit"
	"github.com/nexusgate/gateway/internal/auth"
	"github.com/nexusgate/gateway/internal/config"
	"github.com/nexusgate/gateway/internal/httpserver"
	"github.com/nexusgate/gateway/internal/platform"
	"github.com/nexusgate/gateway/internal/telemetry"
	"github.com/nexusgate/gateway/pkg/admin"
	"github.com/nexusgate/gateway/pkg/breaker"
	"github.com/nexusgate/gateway/pkg/credential"
	"github.com/nexusgate/gateway/pkg/executor"
	"github.com/nexusgate/gateway/pkg/ingress"
	"github.com/nexusgate/gateway/pkg/notify"
	"github.com/nexusgate/gateway/pkg/provider"
	"github.com/nexusgate/gateway/pkg/ratelimiter"
	"github.com/nexusgate/gateway/pkg/resolver"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode (api or worker).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting gateway", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	shutdownTracer, err := telemetryShutdown(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer shutdownTracer()

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry()

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func telemetryShutdown(ctx context.Context, cfg *config.Config, logger *slog.Logger) (func(), error) {
	tp, err := telemetry.NewTracerProvider(ctx, "gateway", cfg.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("initializing tracer: %w", err)
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}, nil
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	sessionSecret := cfg.SessionSecret
	if sessionSecret == "" {
		logger.Warn("ADMIN_SESSION_SECRET not set, generating an ephemeral session secret — admin sessions will not survive a restart")
		sessionSecret = auth.GenerateDevSecret()
	}
	sessionMgr, err := auth.NewSessionManager(sessionSecret, time.Duration(cfg.SessionMaxAgeMinutes)*time.Minute)
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}

	auditWriter := audit.NewWriter(db, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	// Domain services.
	providerSvc := provider.NewService(db, logger)
	credentialSvc, err := credential.NewService(db, rdb, cfg.EncryptionPassphrase, logger)
	if err != nil {
		return fmt.Errorf("creating credential service: %w", err)
	}
	resolverSvc := resolver.NewService(db, logger)

	notifier := notify.NewRegistry()
	if cfg.SlackAlertsEnabled {
		slackProvider := notify.NewSlackProvider(cfg.SlackWebhookURL, logger)
		notifier.Register(slackProvider)
		logger.Info("slack ops notifications enabled")
	} else {
		logger.Info("slack ops notifications disabled (SLACK_ALERTS_ENABLED not set)")
	}

	cb := breaker.New(rdb, notifier, logger,
		cfg.CircuitBreakerFailureThreshold,
		time.Duration(cfg.CircuitBreakerRecoveryTimeoutSeconds)*time.Second,
	)

	engine := executor.New(resolverSvc, providerSvc, credentialSvc, cb, notifier, cfg.MaxFallbackAttemptsPerProvider)

	limiter := ratelimiter.New(rdb)
	limits := ratelimiter.Limits{
		Window:    time.Duration(cfg.RateLimitWindowSeconds) * time.Second,
		GlobalRPM: cfg.GlobalRPM,
		GlobalTPM: cfg.GlobalTPM,
		KeyRPM:    cfg.DefaultKeyRPM,
		KeyTPM:    cfg.DefaultKeyTPM,
		IPRPM:     cfg.IPRPM,
	}

	loginRateLimiter := auth.NewRateLimiter(rdb, 5, 15*time.Minute)
	loginHandler := auth.NewLoginHandler(sessionMgr, db, logger, loginRateLimiter)
	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, sessionMgr, loginHandler)

	srv.Router.Get("/status", srv.HandleStatus)

	// --- OpenAI-compatible proxy surface ---
	ingressHandler := ingress.New(logger, auditWriter, resolverSvc, providerSvc, credentialSvc, engine, limiter, limits)
	srv.V1Router.Mount("/", ingressHandler.Routes())

	// --- Admin CRUD + diagnostics surface ---
	adminHandler := admin.New(logger, providerSvc, credentialSvc, resolverSvc, cb, limiter, limits)
	srv.AdminRouter.Mount("/", adminHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: time.Duration(cfg.UpstreamTimeoutSeconds+10) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runWorker runs the periodic housekeeping that has no place in a request
// path: daily/monthly credential quota resets, mirroring the reference
// proxy's scheduled key_manager maintenance jobs.
func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	logger.Info("worker started")

	credentialSvc, err := credential.NewService(db, rdb, cfg.EncryptionPassphrase, logger)
	if err != nil {
		return fmt.Errorf("creating credential service: %w", err)
	}

	dailyTicker := time.NewTicker(1 * time.Hour)
	defer dailyTicker.Stop()
	monthlyTicker := time.NewTicker(1 * time.Hour)
	defer monthlyTicker.Stop()

	resetDaily := func() {
		now := time.Now().UTC()
		if now.Hour() != 0 {
			return
		}
		if err := credentialSvc.ResetDailyUsage(ctx); err != nil {
			logger.Error("resetting daily credential usage", "error", err)
			return
		}
		logger.Info("daily credential usage reset")
	}
	resetMonthly := func() {
		now := time.Now().UTC()
		if now.Day() != 1 || now.Hour() != 0 {
			return
		}
		if err := credentialSvc.ResetMonthlyUsage(ctx); err != nil {
			logger.Error("resetting monthly credential usage", "error", err)
			return
		}
		logger.Info("monthly credential usage reset")
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutting down")
			return nil
		case <-dailyTicker.C:
			resetDaily()
		case <-monthlyTicker.C:
			resetMonthly()
		}
	}
}
