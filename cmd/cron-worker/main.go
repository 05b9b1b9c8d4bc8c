package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/adyeetya/blogs-backend/internal/cron"
	"github.com/adyeetya/blogs-backend/internal/magazines"
	"github.com/adyeetya/blogs-backend/pkg/config"
	"github.com/adyeetya/blogs-backend/pkg/db"
	"github.com/adyeetya/blogs-backend/pkg/logger"
	"github.com/adyeetya/blogs-backend/pkg/metrics"
	"github.com/adyeetya/blogs-backend/pkg/migrate"
	"github.com/adyeetya/blogs-backend/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run every job a single time and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	var lock cron.Lock = &cron.LocalLock{}
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		redisLock, err := cron.NewRedisLock(redisClient, redisClient.CronLockKey("worker"), 0)
		if err != nil {
			logg.Error(context.Background(), "failed to create cron lock", err)
			os.Exit(1)
		}
		lock = redisLock
	}

	staleJob, err := cron.NewStaleIngestionJob(cron.StaleIngestionJobParams{
		Logger:     logg,
		Repo:       magazines.NewRepository(dbClient.DB()),
		StaleAfter: cfg.Cron.StaleAfter,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stale ingestion job", err)
		os.Exit(1)
	}

	var sweeper cron.Job
	if cfg.Pipeline.ScratchDir != "" {
		sweeper, err = cron.NewScratchSweeperJob(cron.ScratchSweeperJobParams{
			Logger: logg,
			Dir:    cfg.Pipeline.ScratchDir,
			MaxAge: cfg.Cron.StaleAfter,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create scratch sweeper job", err)
			os.Exit(1)
		}
	}

	// reaper runs before the sweeper
	registry, err := cron.NewRegistry(staleJob, sweeper)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        registry.Names(),
	})

	if *once {
		failed, err := service.RunOnce(ctx)
		if err != nil {
			logg.Error(ctx, "cron run failed", err)
			os.Exit(1)
		}
		if failed > 0 {
			logg.Warn(logg.WithField(ctx, "failed_jobs", failed), "cron run finished with failures")
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
