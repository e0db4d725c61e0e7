package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/skritek/overseer/internal/auth"
	"github.com/skritek/overseer/internal/config"
	"github.com/skritek/overseer/internal/events"
	"github.com/skritek/overseer/internal/guard"
	"github.com/skritek/overseer/internal/liveness"
	"github.com/skritek/overseer/internal/notify"
	"github.com/skritek/overseer/internal/outcome"
	"github.com/skritek/overseer/internal/platform/postgres"
	"github.com/skritek/overseer/internal/scheduler"
	"github.com/skritek/overseer/internal/store"
	"github.com/skritek/overseer/internal/tick"
)

// application holds all shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	// Stores
	taskStore         store.TaskStore
	leaseStore        store.LeaseStore
	runStore          store.RunStore
	modelLimitStore   store.ModelLimitStore
	outcomeEventStore store.OutcomeEventStore
	transactor        store.Transactor

	// Core services
	tokenService   *auth.HMACTokenService
	dedupGuard     guard.Guard
	eventEmitter   events.EventEmitter
	selector       *scheduler.Selector
	tracker        *liveness.Tracker
	outcomeService *outcome.Service

	// Outbound adapters
	notifier  notify.Notifier
	alerter   notify.Alerter
	annotator notify.Annotator

	// Background loop
	tickLoop *tick.Loop
}

// newApplication creates an application instance with all dependencies
// initialized. It accepts core dependencies like configuration, logger,
// and database connection that must be established first.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.tokenService, err = auth.NewTokenService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	logger.Info("Webhook token service initialized")

	// Stores
	app.taskStore = postgres.NewPostgresTaskStore(db, logger)
	app.leaseStore = postgres.NewPostgresLeaseStore(db, logger)
	app.runStore = postgres.NewPostgresRunStore(db, logger)
	app.modelLimitStore = postgres.NewPostgresModelLimitStore(db, logger)
	app.outcomeEventStore = postgres.NewPostgresOutcomeEventStore(db, logger)
	app.transactor = store.NewSQLTransactor(db)

	// Shared infrastructure
	app.dedupGuard = guard.NewMemoryGuard()
	app.eventEmitter = events.NewInMemoryEventEmitter(logger)

	// Outbound adapters. Real fleet transports plug in here; the logging
	// adapters keep the loop operational without them.
	app.notifier = notify.NewLogNotifier(logger)
	app.alerter = notify.NewLogAlerter(logger)
	app.annotator = notify.NewLogAnnotator(logger)

	// Coordination core
	app.selector = scheduler.NewSelector(
		app.taskStore,
		app.modelLimitStore,
		scheduler.DefaultProviderTable(),
		cfg.Scheduler,
		logger,
	)

	app.tracker = liveness.NewTracker(
		app.taskStore,
		app.leaseStore,
		app.transactor,
		app.dedupGuard,
		app.alerter,
		app.annotator,
		app.eventEmitter,
		cfg.Liveness,
		logger,
	)

	app.outcomeService = outcome.NewService(
		app.taskStore,
		app.leaseStore,
		app.runStore,
		app.outcomeEventStore,
		app.transactor,
		app.dedupGuard,
		app.alerter,
		app.eventEmitter,
		nil, // session messenger: no conversation transport configured
		nil, // route resolver: events carry empty routes until one is wired
		logger,
	)

	app.tickLoop = tick.NewLoop(
		app.taskStore,
		app.tracker,
		app.selector,
		app.notifier,
		app.dedupGuard,
		app.alerter,
		cfg.Tick.Interval,
		logger,
	)

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run starts the background tick loop and the HTTP server, blocking until
// shutdown.
func (app *application) Run(ctx context.Context) error {
	app.tickLoop.Start()
	app.logger.Info("Tick loop started", "interval", app.config.Tick.Interval)

	router := app.setupRouter()
	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.tickLoop != nil {
		app.tickLoop.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
