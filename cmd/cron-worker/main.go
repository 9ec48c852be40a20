package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/cautela-backend/internal/cron"
	"github.com/angelmondragon/cautela-backend/internal/custody"
	"github.com/angelmondragon/cautela-backend/pkg/config"
	"github.com/angelmondragon/cautela-backend/pkg/db"
	"github.com/angelmondragon/cautela-backend/pkg/instance"
	"github.com/angelmondragon/cautela-backend/pkg/logger"
	"github.com/angelmondragon/cautela-backend/pkg/metrics"
	"github.com/angelmondragon/cautela-backend/pkg/migrate"
	"github.com/angelmondragon/cautela-backend/pkg/outbox"
	"github.com/angelmondragon/cautela-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single maintenance cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})

	if err := run(ctx, cfg, logg, *once); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, once bool) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeQuietly(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeQuietly(logg, "redis", redisClient.Close)

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	service, err := buildService(cfg, logg, dbClient, redisClient, cronMetrics)
	if err != nil {
		return err
	}

	if once {
		logg.Info(ctx, "running single maintenance cycle")
		return service.RunOnce(ctx)
	}

	if addr := cfg.Cron.MetricsAddr; addr != "" {
		defer metrics.Listen(ctx, logg, addr)()
	}
	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

func buildService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, cronMetrics *metrics.CronJobMetrics) (*cron.Service, error) {
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceName), cfg.Cron.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("cron lock: %w", err)
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:              logg,
		DB:                  dbClient,
		Events:              outbox.NewRepository(dbClient.DB()),
		DeadLetters:         outbox.NewDLQRepository(dbClient.DB()),
		EventRetention:      days(cfg.Cron.OutboxRetentionDays),
		DeadLetterRetention: days(cfg.Cron.DLQRetentionDays),
		BatchSize:           cfg.Cron.PruneBatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	audit, err := cron.NewLinkTokenAuditJob(cron.LinkTokenAuditJobParams{
		Logger:   logg,
		Counter:  custody.NewRepository(dbClient.DB(), custody.NewTokenGenerator(cfg.Custody.LinkTokenBytes)),
		Window:   cfg.Cron.LinkAuditWindow,
		Recorder: cronMetrics.SetRetiredLinkTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("link token audit job: %w", err)
	}

	jobs, err := cron.NewRegistry(retention, audit)
	if err != nil {
		return nil, fmt.Errorf("register jobs: %w", err)
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
}

// days converts a retention setting; zero or negative leaves the job default.
func days(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * 24 * time.Hour
}

func closeQuietly(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+name, err)
	}
}
