package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/quote-engine/internal/config"
	"github.com/kursadbilgin/quote-engine/internal/events"
	"github.com/kursadbilgin/quote-engine/internal/handler"
	"github.com/kursadbilgin/quote-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/quote-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/quote-engine/internal/infra/redis"
	"github.com/kursadbilgin/quote-engine/internal/observability"
	"github.com/kursadbilgin/quote-engine/internal/provider"
	"github.com/kursadbilgin/quote-engine/internal/ratelimit"
	"github.com/kursadbilgin/quote-engine/internal/repository"
	"github.com/kursadbilgin/quote-engine/internal/service"
	"github.com/kursadbilgin/quote-engine/internal/transport"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("quote-engine api stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN, postgresql.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime(),
	})
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	stats, err := infraredis.NewProviderStatsStore(rdb)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	limiters := ratelimit.NewRegistry()

	client, err := provider.NewClient(limiters, logger)
	if err != nil {
		return err
	}

	providerRepo := repository.NewGormProviderConfigRepo(db)
	quoteRequestRepo := repository.NewGormQuoteRequestRepo(db)

	var (
		publisher events.Publisher = events.NopPublisher{}
		broker    handler.BrokerHealth
	)
	if cfg.EventsEnabled() {
		mq, err := events.NewRabbitMQ(ctx, cfg.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		publisher = events.NewRabbitMQPublisher(mq)
		broker = mq
	} else {
		logger.Info("RABBITMQ_URL not set, completion events disabled")
	}
	defer publisher.Close() //nolint:errcheck

	audit, err := service.NewAuditRecorder(quoteRequestRepo, stats, publisher, logger)
	if err != nil {
		return err
	}

	orchestrator, err := service.NewQuoteOrchestrator(providerRepo, client, audit, service.OrchestratorOptions{
		RequestDeadline: cfg.RequestDeadline(),
		MaxFanout:       cfg.MaxFanout,
	}, logger)
	if err != nil {
		return err
	}
	orchestrator.SetMetrics(metrics)

	providerService, err := service.NewProviderService(providerRepo, stats, client, logger)
	if err != nil {
		return err
	}
	providerService.SetLimiters(limiters)

	if cfg.ProvidersFile != "" {
		if _, err := providerService.SeedFromFile(ctx, cfg.ProvidersFile); err != nil {
			return fmt.Errorf("provider seeding failed: %w", err)
		}
	}

	active, err := providerRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active providers: %w", err)
	}
	if err := limiters.Warm(active); err != nil {
		return fmt.Errorf("failed to build rate limiters: %w", err)
	}
	logger.Info("active providers loaded", zap.Int("count", len(active)), zap.Int("limiters", limiters.Len()))

	quoteRequests, err := service.NewQuoteRequestService(quoteRequestRepo, cfg.RequestDeadline(), cfg.StuckPendingGrace())
	if err != nil {
		return err
	}

	scanner, err := service.NewStuckRequestScanner(quoteRequests, cfg.StuckScanInterval(), 0, logger)
	if err != nil {
		return err
	}
	scanner.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		AppName:               "quote-engine",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(observability.CorrelationMiddleware())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb, broker)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterQuoteRoutes(app, orchestrator); err != nil {
		return err
	}
	if err := handler.RegisterAdminRoutes(app, providerService, quoteRequests); err != nil {
		return err
	}

	scanErr := make(chan error, 1)
	go func() {
		scanErr <- scanner.Start(ctx)
	}()

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("quote-engine api started", zap.Int("port", cfg.APIPort))
		listenErr <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case err := <-scanErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stuck request scanner failed: %w", err)
		}
	}

	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout()); err != nil {
		logger.Warn("http server shutdown incomplete", zap.Error(err))
	}

	logger.Info("quote-engine api stopped")
	return nil
}
