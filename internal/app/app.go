package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/common"
	"github.com/ternarybob/compleo/internal/handlers"
	"github.com/ternarybob/compleo/internal/interfaces"
	"github.com/ternarybob/compleo/internal/services/analyzer"
	"github.com/ternarybob/compleo/internal/services/browser"
	"github.com/ternarybob/compleo/internal/services/callback"
	"github.com/ternarybob/compleo/internal/services/captcha"
	"github.com/ternarybob/compleo/internal/services/events"
	"github.com/ternarybob/compleo/internal/services/pipeline"
	"github.com/ternarybob/compleo/internal/services/resolver"
	"github.com/ternarybob/compleo/internal/services/scheduler"
	badgerstore "github.com/ternarybob/compleo/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Core services
	EventService    interfaces.EventService
	FieldAnalyzer   interfaces.FieldAnalyzer
	CaptchaSolver   interfaces.CaptchaSolver
	Browser         interfaces.Browser
	Resolver        *resolver.Resolver
	Executor        *pipeline.Executor
	Scheduler       *scheduler.Scheduler
	CallbackService *callback.Service

	// HTTP handlers
	ProfileHandler    *handlers.ProfileHandler
	SiteHandler       *handlers.SiteHandler
	AutomationHandler *handlers.AutomationHandler
	StatusHandler     *handlers.StatusHandler
	WSHandler         *handlers.WebSocketHandler

	retention *cron.Cron
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.initHandlers()

	logger.Info().
		Str("ai_provider", string(cfg.AI.Provider)).
		Int("max_concurrent_jobs", cfg.Automation.MaxConcurrentJobs).
		Msg("Application initialization complete")

	return app, nil
}

// Start launches the scheduler, callback loop and retention job.
func (a *App) Start() error {
	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	if err := a.CallbackService.Start(); err != nil {
		return fmt.Errorf("failed to start callback service: %w", err)
	}
	if err := a.startRetention(); err != nil {
		return fmt.Errorf("failed to start retention job: %w", err)
	}
	return nil
}

// Stop shuts everything down in reverse dependency order.
func (a *App) Stop() error {
	if a.retention != nil {
		a.retention.Stop()
	}
	if a.CallbackService != nil {
		if err := a.CallbackService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Callback service stop failed")
		}
	}
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduler stop failed")
		}
	}
	if a.WSHandler != nil {
		a.WSHandler.Close()
	}
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Event service close failed")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("storage close failed: %w", err)
		}
	}
	return nil
}

// initStorage initializes the storage layer (Badger)
func (a *App) initStorage() error {
	manager, err := badgerstore.NewManager(&a.Config.Storage.Badger, a.Logger)
	if err != nil {
		return err
	}

	a.StorageManager = manager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initServices wires the automation stack bottom-up: events, analyzer,
// solver, browser, resolver, executor, scheduler, callback.
func (a *App) initServices() error {
	a.EventService = events.NewService(a.Config.Automation.ProgressBufferSize, a.Logger)

	if a.Config.AI.APIKey != "" {
		fieldAnalyzer, err := analyzer.NewFromConfig(&a.Config.AI, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to create field analyzer: %w", err)
		}
		a.FieldAnalyzer = fieldAnalyzer
	} else {
		a.Logger.Warn().Msg("No AI API key configured - field resolution uses cache and pattern matching only")
	}

	// The analyzer doubles as the vision fallback for text CAPTCHAs
	a.CaptchaSolver = captcha.NewSolver(&a.Config.Captcha, a.FieldAnalyzer, a.Logger)
	a.Browser = browser.NewDriver(a.Logger)

	a.Resolver = resolver.New(
		a.StorageManager.Mappings(),
		a.FieldAnalyzer,
		a.Config.Automation.MaxCacheAgeDuration(),
		a.Logger,
	)

	a.Executor = pipeline.NewExecutor(
		a.Browser,
		a.Resolver,
		a.CaptchaSolver,
		a.EventService,
		a.StorageManager.Jobs(),
		&a.Config.Automation,
		&a.Config.Captcha,
		a.Logger,
	)

	a.Scheduler = scheduler.New(
		a.Executor,
		a.StorageManager.Profiles(),
		a.StorageManager.Sites(),
		a.StorageManager.Jobs(),
		a.StorageManager.History(),
		&a.Config.Automation,
		a.Logger,
	)

	a.CallbackService = callback.NewService(&a.Config.Callback, a.Scheduler, a.Logger)
	a.CallbackService.SetBrowser(a.Browser)
	return nil
}

func (a *App) initHandlers() {
	a.ProfileHandler = handlers.NewProfileHandler(a.StorageManager.Profiles(), a.Logger)
	a.SiteHandler = handlers.NewSiteHandler(a.StorageManager.Sites(), a.Logger)
	a.AutomationHandler = handlers.NewAutomationHandler(
		a.Scheduler,
		a.StorageManager.Sites(),
		a.StorageManager.Jobs(),
		a.StorageManager.History(),
		a.Logger,
	)
	a.StatusHandler = handlers.NewStatusHandler(a.Scheduler, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, &a.Config.WebSocket, a.Logger)
}

// startRetention schedules pruning of terminal jobs and old fill history.
func (a *App) startRetention() error {
	if !a.Config.Retention.Enabled {
		return nil
	}

	a.retention = cron.New(cron.WithSeconds())
	_, err := a.retention.AddFunc(a.Config.Retention.Schedule, a.pruneRetention)
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", a.Config.Retention.Schedule, err)
	}

	a.retention.Start()
	a.Logger.Info().
		Str("schedule", a.Config.Retention.Schedule).
		Str("max_age", a.Config.Retention.MaxAge).
		Msg("Retention pruning scheduled")
	return nil
}

func (a *App) pruneRetention() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-a.Config.Retention.MaxAgeDuration())

	jobs, err := a.StorageManager.Jobs().DeleteTerminalOlderThan(ctx, cutoff)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Job retention pruning failed")
	}
	history, err := a.StorageManager.History().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("History retention pruning failed")
	}

	a.Logger.Info().
		Int("jobs_pruned", jobs).
		Int("history_pruned", history).
		Msg("Retention pruning completed")
}
