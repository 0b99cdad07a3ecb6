// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"rollingpi/internal/config"
	"rollingpi/internal/domain/ports/adapter"
	payAdapters "rollingpi/internal/infra/adapters/payment"
	"rollingpi/internal/infra/adapters/price"
	"rollingpi/internal/infra/api"
	pg "rollingpi/internal/infra/db/postgres"
	"rollingpi/internal/infra/logging"
	"rollingpi/internal/infra/metrics"
	red "rollingpi/internal/infra/redis"
	"rollingpi/internal/infra/sched"
	"rollingpi/internal/usecase"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfg, err := config.LoadConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := cfg.ValidateServer(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit, "app")
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	// ---- Postgres ----
	if cfg.Database.MigrateOnBoot {
		v, err := pg.Migrate(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Uint("version", v).Msg("schema migrated")
	}
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	go reportPoolStats(ctx, pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	limiter := red.NewRateLimiter(redisClient)
	notifier := red.NewSessionNotifier(redisClient, logger)

	// ---- Repositories ----
	userRepo := pg.NewUserRepoCacheDecorator(pg.NewPostgresUserRepo(pool), redisClient, cfg.Redis.TTL)
	paymentRepo := pg.NewPaymentRepo(pool)
	articleRepo := pg.NewArticleRepo(pool)
	promotionRepo := pg.NewPromotionRepo(pool)
	linkRepo := pg.NewSessionLinkRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Pi Platform ----
	var pi adapter.PiPlatform
	if cfg.Pi.APIKey != "" {
		pi, err = payAdapters.NewPiPlatformGateway(cfg.Pi.APIKey, cfg.Pi.BaseURL, cfg.Pi.HTTPTimeout)
		if err != nil {
			return fmt.Errorf("pi platform: %w", err)
		}
	} else {
		logger.Warn().Msg("pi.api_key not set; using the in-memory platform (sandbox only)")
		pi = payAdapters.NewNoopPiPlatform()
	}
	oracle := price.NewOKXOracle(cfg.Pi.PriceURL, cfg.Pi.PriceTTL, cfg.Pi.HTTPTimeout, logger)

	// ---- Use cases ----
	auth := api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	payUC := usecase.NewPaymentUseCase(paymentRepo, articleRepo, promotionRepo, tm, pi, locker, cfg.Pi.Sandbox, logger)
	linkUC := usecase.NewSessionLinkUseCase(linkRepo, userRepo, tm, auth, notifier, limiter, cfg.Scheduler.LinkMaxAge, logger)
	userUC := usecase.NewUserUseCase(userRepo, pi, auth, cfg.Pi.Sandbox, logger)
	priceUC := usecase.NewPricingUseCase(oracle, logger)

	// ---- Cleanup ----
	cleanup := sched.NewCleanupWorker(cfg.Scheduler.CleanupInterval, []sched.Job{
		{Kind: "session_link", MaxAge: cfg.Scheduler.LinkMaxAge, Sweeper: linkUC},
		{Kind: "payment", MaxAge: cfg.Scheduler.PaymentMaxAge, Sweeper: sched.SweepFunc(payUC.SweepStale)},
	}, logger)
	go func() { _ = cleanup.Run(ctx) }()

	// ---- HTTP ----
	srv := api.NewServer(payUC, linkUC, userUC, priceUC, auth, cfg.Server, logger)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start(ctx) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func reportPoolStats(ctx context.Context, pool *pgxpool.Pool) {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for {
		s := pool.Stat()
		metrics.SetDBPoolStats(s.TotalConns(), s.IdleConns(), s.AcquiredConns())
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
