package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/kitchenstock-backend/internal/cron"
	"github.com/angelmondragon/kitchenstock-backend/internal/engine"
	"github.com/angelmondragon/kitchenstock-backend/internal/notifications"
	"github.com/angelmondragon/kitchenstock-backend/pkg/config"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
	"github.com/angelmondragon/kitchenstock-backend/pkg/metrics"
	"github.com/angelmondragon/kitchenstock-backend/pkg/migrate"
	"github.com/angelmondragon/kitchenstock-backend/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run a single locked cycle and exit")
	only := flag.String("jobs", "", "comma separated job names to run (default: all)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(logg, "config", err)
	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(logg, "database", err)
	defer closeQuietly(logg, "database", dbClient.Close)

	requireResource(logg, "dev migrations", migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient))

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(logg, "redis", err)
	defer closeQuietly(logg, "redis", redisClient.Close)

	engineMetrics := metrics.NewEngineMetrics(prometheus.DefaultRegisterer)
	eng, err := engine.Build(engine.Params{
		Conn:    dbClient.DB(),
		DB:      dbClient,
		Config:  cfg.Engine,
		Logger:  logg,
		Metrics: engineMetrics,
		Cache:   redisClient,
	})
	requireResource(logg, "engine", err)

	registry, err := buildRegistry(cfg, logg, dbClient, eng, engineMetrics)
	requireResource(logg, "cron jobs", err)
	registry, err = registry.Select(splitNames(*only)...)
	requireResource(logg, "job selection", err)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker", envName(cfg.App.Env)), cfg.Cron.LockTTL)
	requireResource(logg, "cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	requireResource(logg, "cron service", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	if *once {
		logg.Info(ctx, "running single cron cycle")
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return service.Run(groupCtx) })
	group.Go(func() error {
		return metrics.Serve(groupCtx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg)
	})
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, eng *engine.Engine, engineMetrics *metrics.EngineMetrics) (*cron.Registry, error) {
	resync, err := cron.NewAvailabilityResyncJob(cron.AvailabilityResyncJobParams{
		Logger:   logg,
		Cascader: eng.Availability,
		Alerts:   eng.Alerts,
	})
	if err != nil {
		return nil, fmt.Errorf("availability resync job: %w", err)
	}
	reconcile, err := cron.NewLedgerReconciliationJob(cron.LedgerReconciliationJobParams{
		Logger:     logg,
		Reconciler: eng.Inventory,
		Metrics:    engineMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger reconciliation job: %w", err)
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		Repository:   eng.OutboxRepo,
		DeadLetters:  eng.DLQ,
		Retention:    cfg.Outbox.Retention,
		DLQRetention: cfg.Outbox.DLQRetention,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
		BacklogWarn:  cfg.Outbox.BacklogWarn,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	notificationCleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		Repository: notifications.NewRepository(dbClient.DB()),
		Retention:  cfg.Cron.NotificationRetention,
	})
	if err != nil {
		return nil, fmt.Errorf("notification cleanup job: %w", err)
	}
	return cron.NewRegistry(resync, reconcile, outboxRetention, notificationCleanup)
}

func splitNames(raw string) []string {
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func envName(env string) string {
	if env == "" {
		return "local"
	}
	return env
}

func requireResource(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

func closeQuietly(logg *logger.Logger, resource string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+resource, err)
	}
}
