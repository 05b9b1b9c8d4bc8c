package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adyeetya/blogs-backend/api/controllers"
	"github.com/adyeetya/blogs-backend/api/routes"
	"github.com/adyeetya/blogs-backend/internal/ingestion"
	"github.com/adyeetya/blogs-backend/internal/ingestion/render"
	"github.com/adyeetya/blogs-backend/internal/ingestion/transcode"
	"github.com/adyeetya/blogs-backend/internal/magazines"
	"github.com/adyeetya/blogs-backend/pkg/config"
	"github.com/adyeetya/blogs-backend/pkg/db"
	"github.com/adyeetya/blogs-backend/pkg/enums"
	"github.com/adyeetya/blogs-backend/pkg/logger"
	"github.com/adyeetya/blogs-backend/pkg/metrics"
	"github.com/adyeetya/blogs-backend/pkg/migrate"
	"github.com/adyeetya/blogs-backend/pkg/pubsub"
	"github.com/adyeetya/blogs-backend/pkg/redis"
	"github.com/adyeetya/blogs-backend/pkg/storage"
	"github.com/adyeetya/blogs-backend/pkg/storage/gcs"
	"github.com/adyeetya/blogs-backend/pkg/storage/s3"
)

const shutdownGrace = 30 * time.Second

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
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
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
	migrate.WarnPending(ctx, logg, dbClient, migrate.DefaultDir)

	readiness := map[string]controllers.Pinger{"db": dbClient}

	var locker ingestion.Locker = ingestion.NewMemoryLocker()
	if cfg.Redis.Enabled() {
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
		redisLocker, err := ingestion.NewRedisLocker(redisClient, cfg.Pipeline.LockTTL())
		if err != nil {
			logg.Error(ctx, "failed to create ingestion locker", err)
			os.Exit(1)
		}
		locker = redisLocker
		readiness["redis"] = redisClient
	} else {
		logg.Warn(ctx, "redis not configured, ingestion locks are process-local")
	}

	store, err := newStore(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap object storage", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logg.Error(context.Background(), "error closing object storage", err)
		}
	}()
	readiness["storage"] = store

	var events ingestion.Publisher = ingestion.NopPublisher{}
	if strings.TrimSpace(cfg.PubSub.MagazineTopic) != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := psClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		events = ingestion.NewPubSubPublisher(psClient, cfg.PubSub.MagazineTopic)
		readiness["pubsub"] = psClient
	}

	format, err := enums.ParsePageFormat(cfg.Pipeline.Format)
	if err != nil {
		logg.Error(ctx, "invalid page format", err)
		os.Exit(1)
	}
	transcoder, err := transcode.New(transcode.Options{
		MaxWidth: cfg.Pipeline.MaxWidth,
		Quality:  cfg.Pipeline.Quality,
		Format:   format,
	})
	if err != nil {
		logg.Error(ctx, "failed to create transcoder", err)
		os.Exit(1)
	}
	renderer := render.New(render.Options{
		Binary:  cfg.Pipeline.PDFToPPMPath,
		DPI:     cfg.Pipeline.RenderDPI,
		Timeout: cfg.Pipeline.RenderTimeout,
	})

	scratchDir := cfg.Pipeline.ScratchDir
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	if err := os.MkdirAll(scratchDir, 0o750); err != nil {
		logg.Error(ctx, "failed to create scratch dir", err)
		os.Exit(1)
	}
	cfg.Pipeline.ScratchDir = scratchDir

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	repo := magazines.NewRepository(dbClient.DB())
	orch, err := ingestion.NewOrchestrator(ingestion.Deps{
		Records:    repo,
		Store:      store,
		Renderer:   renderer,
		Transcoder: transcoder,
		Events:     events,
		Metrics:    metrics.NewIngestionMetrics(reg),
		Logger:     logg,
	}, ingestion.Options{
		ScratchDir:      scratchDir,
		PageConcurrency: cfg.Pipeline.PageConcurrency,
	})
	if err != nil {
		logg.Error(ctx, "failed to create ingestion orchestrator", err)
		os.Exit(1)
	}

	runner, err := ingestion.NewRunner(orch, locker, logg, cfg.Pipeline.RunTimeout)
	if err != nil {
		logg.Error(ctx, "failed to create ingestion runner", err)
		os.Exit(1)
	}

	magazineService, err := magazines.NewService(repo, runner, logg)
	if err != nil {
		logg.Error(ctx, "failed to create magazine service", err)
		os.Exit(1)
	}

	addr := ":" + cfg.App.Port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"storage":  cfg.Storage.Provider,
		"format":   format.String(),
		"dbDriver": dbClient.Dialect(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			Magazines: magazineService,
			Readiness: readiness,
			Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	logg.Info(ctx, "api server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "http shutdown incomplete", err)
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "ingestion runs still in flight at shutdown", err)
	}
}

func newStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (storage.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Provider)) {
	case config.StorageProviderGCS:
		return gcs.NewClient(ctx, cfg.Storage, cfg.GCS, cfg.GCP, logg)
	case config.StorageProviderS3:
		return s3.NewClient(ctx, cfg.Storage, cfg.S3, logg)
	default:
		return nil, fmt.Errorf("unsupported storage provider %q", cfg.Storage.Provider)
	}
}
