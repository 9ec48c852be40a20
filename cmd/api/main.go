package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/cautela-backend/api/routes"
	"github.com/angelmondragon/cautela-backend/internal/auth"
	"github.com/angelmondragon/cautela-backend/internal/custody"
	"github.com/angelmondragon/cautela-backend/internal/operators"
	"github.com/angelmondragon/cautela-backend/pkg/auth/session"
	"github.com/angelmondragon/cautela-backend/pkg/config"
	"github.com/angelmondragon/cautela-backend/pkg/db"
	"github.com/angelmondragon/cautela-backend/pkg/env"
	"github.com/angelmondragon/cautela-backend/pkg/instance"
	"github.com/angelmondragon/cautela-backend/pkg/logger"
	"github.com/angelmondragon/cautela-backend/pkg/metrics"
	"github.com/angelmondragon/cautela-backend/pkg/migrate"
	"github.com/angelmondragon/cautela-backend/pkg/outbox"
	"github.com/angelmondragon/cautela-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	operatorRepo := operators.NewRepository(dbClient.DB())

	sessionManager, err := session.NewManager(redisClient, operatorRepo, cfg.JWT)
	if err != nil {
		logg.Error(ctx, "failed to create session manager", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		OperatorRepo:   operatorRepo,
		SessionManager: sessionManager,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create auth service", err)
		os.Exit(1)
	}

	operatorsService, err := operators.NewService(operatorRepo, cfg.Password)
	if err != nil {
		logg.Error(ctx, "failed to create operators service", err)
		os.Exit(1)
	}

	tokens := custody.NewTokenGenerator(cfg.Custody.LinkTokenBytes)
	custodyService, err := custody.NewService(custody.ServiceParams{
		Repo:               custody.NewRepository(dbClient.DB(), tokens),
		Tx:                 dbClient,
		Outbox:             outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Tokens:             tokens,
		Metrics:            metrics.NewCustodyMetrics(prometheus.DefaultRegisterer),
		Logger:             logg,
		TransitionAttempts: cfg.Custody.TransitionAttempts,
		PublicBaseURL:      cfg.Custody.PublicBaseURL,
	})
	if err != nil {
		logg.Error(ctx, "failed to create custody service", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			sessionManager,
			authService,
			operatorsService,
			custodyService,
			promhttp.Handler(),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "graceful shutdown failed", err)
		}
	}
}
