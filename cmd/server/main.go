// Inventory sync backend entrypoint. Wires configuration, storage,
// the external-system connector and the sync orchestrator, then serves
// the management API until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/invsync/backend/internal/application/credentials"
	"github.com/invsync/backend/internal/application/importer"
	"github.com/invsync/backend/internal/application/orchestrator"
	syncdomain "github.com/invsync/backend/internal/domain/sync"
	"github.com/invsync/backend/internal/infrastructure/cache"
	"github.com/invsync/backend/internal/infrastructure/config"
	"github.com/invsync/backend/internal/infrastructure/connector"
	"github.com/invsync/backend/internal/infrastructure/importcsv"
	"github.com/invsync/backend/internal/infrastructure/logger"
	"github.com/invsync/backend/internal/infrastructure/persistence"
	"github.com/invsync/backend/internal/infrastructure/scheduler"
	"github.com/invsync/backend/internal/infrastructure/storage"
	"github.com/invsync/backend/internal/infrastructure/telemetry"
	"github.com/invsync/backend/internal/interfaces/http/handler"
	"github.com/invsync/backend/internal/interfaces/http/router"
)

var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting inventory sync backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx := context.Background()

	// Continuous profiling must start before tracing so span profiles
	// have a profiler to attach to.
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiler.Enabled,
		ServerAddress:     cfg.Profiler.ServerAddress,
		ApplicationName:   cfg.Profiler.ApplicationName,
		ProfileCPU:        true,
		ProfileAllocSpace: true,
		ProfileInuseSpace: true,
		ProfileGoroutines: true,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
		SpanProfiles:      cfg.Profiler.Enabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	defer func() {
		if err := meterProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	defer func() {
		if err := loggerProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()
	if bridge := loggerProvider.BridgeCore(); bridge != nil {
		log = log.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, bridge)
		}))
	}

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Run lock: Redis when available so the at-most-one-run guarantee
	// holds across replicas, in-process otherwise.
	var runLock syncdomain.RunLock
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing Redis client", zap.Error(err))
			}
		}()
		runLock = cache.NewRedisRunLock(redisClient, cfg.App.Name)
		log.Info("Using Redis run lock", zap.String("addr", cfg.Redis.Addr()))
	} else {
		runLock = cache.NewMemoryRunLock()
		log.Info("Using in-memory run lock")
	}

	// CSV staging buffer.
	var staging storage.StagingStore
	switch cfg.Storage.Backend {
	case "s3":
		s3Store, err := storage.NewS3StagingStore(&cfg.Storage)
		if err != nil {
			log.Fatal("Failed to initialize S3 staging store", zap.Error(err))
		}
		if err := s3Store.EnsureBucket(ctx); err != nil {
			log.Fatal("Failed to ensure staging bucket", zap.Error(err))
		}
		staging = s3Store
		log.Info("Using S3 staging store", zap.String("bucket", cfg.Storage.Bucket))
	default:
		localStore, err := storage.NewLocalStagingStore(cfg.Storage.LocalDir)
		if err != nil {
			log.Fatal("Failed to initialize local staging store", zap.Error(err))
		}
		staging = localStore
		log.Info("Using local staging store", zap.String("dir", cfg.Storage.LocalDir))
	}

	// Initialize repositories
	credentialKey, err := cfg.Secrets.DecodeCredentialKey()
	if err != nil {
		log.Fatal("Invalid credential encryption key", zap.Error(err))
	}
	credentialRepo, err := persistence.NewGormCredentialRepository(db.DB, credentialKey)
	if err != nil {
		log.Fatal("Failed to initialize credential repository", zap.Error(err))
	}
	vendorRepo := persistence.NewGormVendorRepository(db.DB)
	itemRepo := persistence.NewGormItemRepository(db.DB)
	bomRepo := persistence.NewGormBOMRepository(db.DB)
	purchaseOrderRepo := persistence.NewGormPurchaseOrderRepository(db.DB)
	runRepo := persistence.NewGormRunRepository(db.DB)
	healthRepo := persistence.NewGormHealthRepository(db.DB)

	// The connector reads credentials live from the repository, so a
	// credential update takes effect on the next fetch.
	apiClient := connector.NewClient(credentialRepo,
		connector.WithHTTPClient(&http.Client{Timeout: cfg.Connector.Timeout}),
	)

	syncMetrics, err := telemetry.NewSyncMetrics()
	if err != nil {
		log.Fatal("Failed to initialize sync metrics", zap.Error(err))
	}

	// Initialize application services
	columnMode := importcsv.ParseColumnCountMode(cfg.Sync.ColumnCountMode)
	phases := orchestrator.NewPhases(orchestrator.Repositories{
		Vendors:        vendorRepo,
		Items:          itemRepo,
		BOMs:           bomRepo,
		PurchaseOrders: purchaseOrderRepo,
	}, apiClient, staging, columnMode)

	orch := orchestrator.New(&cfg.Sync, runLock, runRepo, healthRepo, phases, log,
		orchestrator.WithMetrics(syncMetrics),
	)
	credentialService := credentials.NewService(credentialRepo, apiClient, log)
	poImportService := importer.NewPurchaseOrderImportService(purchaseOrderRepo, apiClient, columnMode, log)

	// Scheduler drives scheduled runs through the same orchestrator
	// entry point as manual triggers.
	sched := scheduler.New(scheduler.TriggerFunc(
		func(ctx context.Context, trigger syncdomain.TriggerType, sources []syncdomain.Source) error {
			_, _, err := orch.Run(ctx, trigger, sources)
			return err
		},
	), log)
	cadences := scheduler.Cadences{}
	for _, source := range syncdomain.AllSources() {
		cadences[source] = cfg.Sync.Cadence(source)
	}
	if cfg.Sync.AutoStart {
		if err := sched.Start(ctx, cadences); err != nil {
			log.Fatal("Failed to start sync schedule", zap.Error(err))
		}
		log.Info("Sync schedule armed at boot")
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sched.Stop(stopCtx); err != nil {
			log.Error("Error stopping sync schedule", zap.Error(err))
		}
	}()

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	routerCfg := router.DefaultConfig(cfg.App.Name)
	routerCfg.TracingEnabled = cfg.Telemetry.Enabled
	routerCfg.CORS.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	routerCfg.BodyLimit.MaxBytes = cfg.HTTP.MaxBodySize
	r, err := router.New(routerCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize router", zap.Error(err))
	}
	r.Register(handler.NewSyncHandler(orch, sched, cadences))
	r.Register(handler.NewCredentialsHandler(credentialService))
	r.Register(handler.NewImportsHandler(poImportService))
	r.Register(handler.NewStagingHandler(staging, syncMetrics))
	r.Setup()

	engine := r.Engine()
	handler.NewSystemHandler(db, version).RegisterRoutes(engine)
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	server := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		log.Fatal("HTTP server failed", zap.Error(err))
	case sig := <-quit:
		log.Info("Shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", zap.Error(err))
	}
	log.Info("Server stopped")
}
