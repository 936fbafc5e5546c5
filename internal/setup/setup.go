// Package setup bootstraps the shared dependencies of every command.
package setup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/robalyx/timeline/internal/database"
	"github.com/robalyx/timeline/internal/database/dbretry"
	"github.com/robalyx/timeline/internal/database/migrations"
	"github.com/robalyx/timeline/internal/graph"
	"github.com/robalyx/timeline/internal/redis"
	"github.com/robalyx/timeline/internal/setup/config"
	"github.com/robalyx/timeline/internal/setup/telemetry"
	"github.com/robalyx/timeline/internal/timeline/cache"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// ErrPendingMigrations is returned when the schema is behind and nobody confirmed the upgrade.
var ErrPendingMigrations = errors.New("database migrations are pending, run `db migrate` first")

// Version is reported with traces.
const Version = "0.1.0"

// App bundles all core dependencies and services needed by the application.
type App struct {
	Config       *config.Config     // Application configuration
	Logger       *zap.Logger        // Main application logger
	DBLogger     *zap.Logger        // Database-specific logger
	ProfileDB    database.Client    // Profile store connection pool
	ContentDB    database.Client    // Content store connection pool
	Graph        *graph.Store       // Social graph store
	RedisManager *redis.Manager     // Redis connection manager
	Timeline     *Timeline          // Timeline service and its guarded lookups
	LogManager   *telemetry.Manager // Log management system
	pprofServer  *pprofServer       // Debug HTTP server for pprof
	stopTracing  func(context.Context) error
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context, serviceType telemetry.ServiceType, logDir string) (*App, error) {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	return InitializeWithConfig(ctx, cfg, serviceType, logDir)
}

// InitializeWithConfig is InitializeApp with an already loaded configuration.
func InitializeWithConfig(
	ctx context.Context, cfg *config.Config, serviceType telemetry.ServiceType, logDir string,
) (app *App, err error) {
	// Logging system is initialized first to capture setup issues
	tracingEnabled := cfg.Common.Telemetry.UptraceDSN != ""
	logManager := telemetry.NewManager(serviceType, logDir, &cfg.Common.Debug, tracingEnabled)

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		return nil, err
	}

	app = &App{
		Config:       cfg,
		Logger:       logger,
		DBLogger:     dbLogger.Named("database"),
		LogManager:   logManager,
		RedisManager: redis.NewManager(&cfg.Common.Redis, logger),
		stopTracing: telemetry.SetupTracing(
			&cfg.Common.Telemetry, serviceType, Version, logManager.GetInstanceID(),
		),
	}

	// Release whatever was opened if a later step fails
	defer func() {
		if err != nil {
			app.Cleanup(context.Background())
			app = nil
		}
	}()

	app.ProfileDB, err = checkAndRunMigrations(ctx, &cfg.Common.ProfileDB, migrations.ProfileDB, dbLogger)
	if err != nil {
		return app, err
	}

	app.ContentDB, err = checkAndRunMigrations(ctx, &cfg.Common.ContentDB, migrations.ContentDB, dbLogger)
	if err != nil {
		return app, err
	}

	app.Graph, err = graph.Open(ctx, cfg.Common.Graph.Path, graph.Options{
		PoolSize:               cfg.Common.Graph.PoolSize,
		BusyTimeout:            time.Duration(cfg.Common.Graph.BusyTimeout) * time.Millisecond,
		HighFanoutMinFollowers: cfg.Common.Graph.HighFanoutMinFollowers,
	}, logger)
	if err != nil {
		return app, err
	}

	cacheStore, err := app.newCacheStore()
	if err != nil {
		return app, err
	}

	app.Timeline = NewTimeline(cfg, Stores{
		Profiles:         app.ProfileDB.Model().Profile(),
		Graph:            app.Graph,
		Content:          app.ContentDB.Model().Post(),
		ProfileRetryable: dbretry.IsRetryableError,
		GraphRetryable:   graph.IsRetryableError,
		ContentRetryable: dbretry.IsRetryableError,
	}, cacheStore, logger)

	if cfg.Common.Debug.EnablePprof {
		srv, err := startPprofServer(cfg.Common.Debug.PprofPort, logger)
		if err != nil {
			logger.Error("Failed to start pprof server", zap.Error(err))
		} else {
			app.pprofServer = srv

			logger.Warn("pprof debugging endpoint enabled - this should not be used in production!")
		}
	}

	return app, nil
}

// newCacheStore creates the result cache backend selected in the config.
func (s *App) newCacheStore() (cache.Store, error) {
	cacheCfg := &s.Config.Timeline.Cache

	switch cacheCfg.Backend {
	case config.CacheBackendRedis:
		client, err := s.RedisManager.GetClient(redis.CacheDBIndex)
		if err != nil {
			return nil, err
		}
		return cache.NewRedisStore(client, time.Duration(cacheCfg.TTL)*time.Second), nil
	case config.CacheBackendMemory, "":
		return NewMemoryCacheStore(cacheCfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownCacheBackend, cacheCfg.Backend)
	}
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (s *App) Cleanup(ctx context.Context) {
	if s.pprofServer != nil {
		if err := s.pprofServer.srv.Shutdown(ctx); err != nil {
			s.Logger.Error("Failed to shutdown pprof server", zap.Error(err))
		}

		s.pprofServer.listener.Close()
	}

	if s.Graph != nil {
		if err := s.Graph.Close(); err != nil {
			log.Printf("Failed to close graph store: %v", err)
		}
	}

	for _, db := range []database.Client{s.ProfileDB, s.ContentDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database connection: %v", err)
		}
	}

	// Close Redis connections last as other components might need it during cleanup
	s.RedisManager.Close()

	// Flush spans before the loggers
	if err := s.stopTracing(ctx); err != nil {
		log.Printf("Failed to shutdown tracing: %v", err)
	}

	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}
}

// checkAndRunMigrations connects to a database and applies pending migrations
// once an interactive user confirms them.
func checkAndRunMigrations(
	ctx context.Context, cfg *config.PostgreSQL, name string, dbLogger *zap.Logger,
) (database.Client, error) {
	tempDB, err := database.NewConnection(ctx, cfg, name, dbLogger, false)
	if err != nil {
		return nil, err
	}

	set, err := migrations.For(name)
	if err != nil {
		tempDB.Close()
		return nil, err
	}

	migrator := migrate.NewMigrator(tempDB.DB(), set)

	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		tempDB.Close()
		return nil, fmt.Errorf("failed to check migration status: %w", err)
	}

	if len(ms.Unapplied()) == 0 {
		return tempDB, nil
	}

	tempDB.Close()

	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return nil, fmt.Errorf("%s: %w", name, ErrPendingMigrations)
	}

	log.Printf("Migrations for %s are pending. Would you like to run them now? (y/N)", name)

	var response string

	_, _ = fmt.Scanln(&response)

	if response != "y" && response != "Y" {
		return nil, fmt.Errorf("%s: %w", name, ErrPendingMigrations)
	}

	return database.NewConnection(ctx, cfg, name, dbLogger, true)
}
