package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cadence/internal/common"
	"github.com/ternarybob/cadence/internal/handlers"
	"github.com/ternarybob/cadence/internal/interfaces"
	"github.com/ternarybob/cadence/internal/models"
	"github.com/ternarybob/cadence/internal/services/configstore"
	"github.com/ternarybob/cadence/internal/services/executor"
	"github.com/ternarybob/cadence/internal/services/jobs"
	"github.com/ternarybob/cadence/internal/services/reconciler"
	"github.com/ternarybob/cadence/internal/services/scheduler"
	"github.com/ternarybob/cadence/internal/storage/sqlite"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB               *sqlite.SQLiteDB
	JobConfigStorage interfaces.JobConfigStorage
	JobLogStorage    interfaces.JobLogStorage

	ConfigClient interfaces.ConfigClient
	ConfigStore  *configstore.Service

	Registry   *jobs.Registry
	Executor   *executor.Service
	Scheduler  *scheduler.Manager
	Reconciler *reconciler.Service
	Registrar  *jobs.Registrar

	// HTTP handlers
	APIHandler          *handlers.APIHandler
	JobConfigHandler    *handlers.JobConfigHandler
	JobExecutionHandler *handlers.JobExecutionHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: jobs.Default(),
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	if err := app.startup(context.Background()); err != nil {
		return nil, fmt.Errorf("startup sync failed: %w", err)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Int("scheduled_jobs", len(app.Scheduler.JobIDs())).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens SQLite and wires the storage layer
func (a *App) initDatabase() error {
	db, err := sqlite.NewSQLiteDB(a.Logger, &a.Config.Storage.SQLite)
	if err != nil {
		return err
	}

	a.DB = db
	a.JobConfigStorage = sqlite.NewJobConfigStorage(db, a.Logger)
	a.JobLogStorage = sqlite.NewJobLogStorage(db, a.Logger)

	a.Logger.Debug().
		Str("storage", "sqlite").
		Str("path", a.Config.Storage.SQLite.Path).
		Msg("Storage layer initialized")
	return nil
}

// initServices wires the config store, scheduler, executor, and reconciler
func (a *App) initServices() error {
	if a.Config.ConfigStore.Addr != "" {
		a.ConfigClient = configstore.NewHTTPClient(&a.Config.ConfigStore, a.Logger)
		a.Logger.Info().
			Str("addr", a.Config.ConfigStore.Addr).
			Str("namespace", a.Config.ConfigStore.Namespace).
			Msg("Config store client connected")
	} else {
		a.ConfigClient = configstore.NewMemoryClient()
		a.Logger.Info().Msg("No config store address configured, using in-memory client")
	}

	a.ConfigStore = configstore.NewService(a.ConfigClient, &a.Config.ConfigStore, a.Logger)

	a.Executor = executor.NewService(a.Registry, a.JobLogStorage, a.Logger)
	a.Scheduler = scheduler.NewManager(a.Executor, a.Logger)
	a.Reconciler = reconciler.NewService(a.JobConfigStorage, a.Scheduler, a.Config.Environment, a.Logger)
	a.Registrar = jobs.NewRegistrar(a.Registry, a.JobConfigStorage, a.ConfigStore, a.Scheduler, a.Reconciler.OnChange, a.Config.Environment, a.Config.Scheduler, a.Logger)

	return nil
}

// initHandlers wires the management API handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Scheduler, a.ConfigStore, a.Config.Environment, a.Logger)
	a.JobConfigHandler = handlers.NewJobConfigHandler(
		a.JobConfigStorage, a.Scheduler, a.ConfigStore, a.Reconciler.OnChange, a.Config.Environment, a.Config.Scheduler, a.Logger)
	a.JobExecutionHandler = handlers.NewJobExecutionHandler(
		a.JobConfigStorage, a.JobLogStorage, a.Executor, a.Logger)
}

// startup closes out orphaned executions, syncs registrations, and
// schedules every RUNNING job of this environment.
func (a *App) startup(ctx context.Context) error {
	failed, err := a.JobLogStorage.FailRunningLogs(ctx, "execution interrupted")
	if err != nil {
		return err
	}
	if failed > 0 {
		a.Logger.Warn().Int("orphaned", failed).Msg("Closed out executions orphaned by a previous process")
	}

	a.Registrar.SyncAll(ctx)

	// RUNNING rows without a live registration still get a handle and a
	// document subscription; they fail at fire time with a clear error
	// until their implementation registers.
	running, err := a.JobConfigStorage.ListByStatus(ctx, models.JobStatusRunning, a.Config.Environment)
	if err != nil {
		return err
	}
	for _, cfg := range running {
		if !a.Scheduler.HasJob(cfg.ID) {
			if err := a.Scheduler.AddJob(cfg); err != nil {
				a.Logger.Warn().Err(err).
					Int64("job_id", cfg.ID).
					Str("job_name", cfg.JobName).
					Msg("RUNNING job could not be scheduled at startup")
				continue
			}
		}
		if err := a.ConfigStore.Subscribe(cfg.DataID(), a.Reconciler.OnChange); err != nil {
			a.Logger.Warn().Err(err).
				Str("data_id", cfg.DataID()).
				Msg("Job document subscription deferred")
		}
	}

	return nil
}

// Close shuts down components in reverse dependency order
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application")

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.ConfigStore != nil {
		if err := a.ConfigStore.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Config store close failed")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Database close failed")
			return err
		}
	}

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}
