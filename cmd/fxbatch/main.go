package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/canbulut/fxbatch/internal/batch"
	"github.com/canbulut/fxbatch/internal/contentstore"
	"github.com/canbulut/fxbatch/internal/core/ports"
	portssvc "github.com/canbulut/fxbatch/internal/core/ports/services"
	"github.com/canbulut/fxbatch/internal/core/services"
	"github.com/canbulut/fxbatch/internal/events"
	"github.com/canbulut/fxbatch/internal/handlers"
	"github.com/canbulut/fxbatch/internal/middleware"
	"github.com/canbulut/fxbatch/internal/platform/config"
	"github.com/canbulut/fxbatch/internal/rates"
	"github.com/canbulut/fxbatch/internal/repositories/database/pgsql"
	"github.com/canbulut/fxbatch/pkg/database"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ulule/limiter/v3"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
)

// @title FX Batch API
// @version 1.0
// @description Bulk currency conversion service with async batch processing.

// @host localhost:8080
// @BasePath /api/v1
func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection pool (for application use)
	dbPool, err := database.NewPgxPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer database.ClosePgxPool(dbPool)
	logger.Info("Database connection pool established.")

	if err := runMigrations(cfg.DatabaseURL, logger); err != nil {
		os.Exit(1)
	}

	// Content store with background TTL sweep
	store := contentstore.New(cfg.ContentStoreMaxEntries, cfg.ContentStoreTTL, cfg.ContentStoreSweepInterval, logger)
	store.Start(ctx)
	defer store.Stop()

	// Repositories
	writeRepo := pgsql.NewPgxConversionWriteRepository(dbPool)
	readRepo := pgsql.NewPgxConversionReadRepository(dbPool)
	execRepo := pgsql.NewPgxJobExecutionRepository(dbPool)

	// Kafka producer and the read-model projector
	var publisher ports.EventPublisher
	producer := events.NewProducer(cfg.KafkaBrokers, cfg.EventTopic, logger)
	defer producer.Close()
	publisher = producer

	projector := events.NewProjector(cfg.KafkaBrokers, cfg.EventTopic, cfg.EventConsumerGroup, readRepo, logger)
	defer projector.Close()
	go projector.Run(ctx)

	// Rate lookup with in-memory caching
	var provider rates.Provider = rates.NewHTTPProvider(cfg.RateServiceURL, cfg.RateLookupTimeout)
	if cfg.RateCacheTTL > 0 {
		provider = rates.NewCachingProvider(provider, cfg.RateCacheTTL)
	}

	// Batch pipeline
	writer := batch.NewDualWriter(writeRepo, publisher, logger)
	engine := batch.NewEngine(batch.Config{
		ChunkSize:  cfg.ChunkSize,
		SkipLimit:  cfg.SkipLimit,
		RetryLimit: cfg.RetryLimit,
	}, provider, writeRepo, writer, execRepo, logger)

	batchService := services.NewBatchJobService(store, engine, execRepo, cfg.WorkerPoolSize, cfg.WorkerQueueSize, logger)
	batchService.Start(ctx)

	conversionService := services.NewConversionService(provider, writer, readRepo, publisher, logger)
	statusService := services.NewJobStatusService(execRepo, logger)

	if cfg.CommandConsumer {
		commandConsumer := events.NewCommandConsumer(cfg.KafkaBrokers, cfg.CommandTopic, cfg.CommandGroup, conversionService, logger)
		defer commandConsumer.Close()
		go commandConsumer.Run(ctx)
		logger.Info("Command consumer started", slog.String("topic", cfg.CommandTopic))
	}

	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.StructuredLoggingMiddleware(logger), gin.Recovery())
	r.Use(cors.Default())

	if err := r.SetTrustedProxies(nil); err != nil {
		logger.Error("Failed to set trusted proxies", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Rate limit uploads to keep a single client from flooding the job queue
	uploadLimiter := limiter.New(memorystore.NewStore(), limiter.Rate{Period: time.Minute, Limit: 30})

	container := &portssvc.ServiceContainer{
		Conversion: conversionService,
		BatchJob:   batchService,
		JobStatus:  statusService,
	}
	handlers.RegisterRoutes(r, cfg, container, uploadLimiter)

	logger.Info("Server starting", slog.String("port", cfg.Port))
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Error("Server failed to run", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// runMigrations applies all pending up migrations using a short-lived database/sql
// connection, matching the pgx driver used by the pool.
func runMigrations(databaseURL string, logger *slog.Logger) error {
	logger.Info("Running database migrations...")
	migrationDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		logger.Error("Failed to open database connection for migrations", slog.String("error", err.Error()))
		return err
	}
	defer func() {
		if cerr := migrationDB.Close(); cerr != nil {
			logger.Error("Error closing migration DB connection", slog.String("error", cerr.Error()))
		}
	}()
	if err := migrationDB.Ping(); err != nil {
		logger.Error("Failed to ping database for migrations", slog.String("error", err.Error()))
		return err
	}

	driver, err := postgres.WithInstance(migrationDB, &postgres.Config{})
	if err != nil {
		logger.Error("Could not create postgres driver instance for migrations", slog.String("error", err.Error()))
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		logger.Error("Could not create migrate instance", slog.String("error", err.Error()))
		return err
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		logger.Error("Failed to apply migrations", slog.String("error", err.Error()))
		return err
	}

	sourceErr, dbErr := m.Close()
	if sourceErr != nil {
		logger.Error("Migration source error", slog.String("error", sourceErr.Error()))
		return sourceErr
	}
	if dbErr != nil {
		logger.Error("Migration database error", slog.String("error", dbErr.Error()))
		return dbErr
	}

	if err == migrate.ErrNoChange {
		logger.Info("No new migrations to apply.")
	} else {
		logger.Info("Database migrations applied successfully.")
	}
	return nil
}
