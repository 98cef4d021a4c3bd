// -----------------------------------------------------------------------
// App - Builds and owns the application's component graph
// -----------------------------------------------------------------------

package app

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/censeo/internal/common"
	"github.com/ternarybob/censeo/internal/handlers"
	"github.com/ternarybob/censeo/internal/interfaces"
	"github.com/ternarybob/censeo/internal/queue"
	"github.com/ternarybob/censeo/internal/services/analysis"
	"github.com/ternarybob/censeo/internal/services/extract"
	"github.com/ternarybob/censeo/internal/services/llm"
	"github.com/ternarybob/censeo/internal/services/report"
	"github.com/ternarybob/censeo/internal/services/scheduler"
	"github.com/ternarybob/censeo/internal/storage/badger"
	"github.com/ternarybob/censeo/internal/worker"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	QueueManager   interfaces.QueueManager

	LLMService       interfaces.LLMService
	Extractor        interfaces.TextExtractor
	AnalysisService  *analysis.Service
	ReportService    *report.Service
	SchedulerService *scheduler.Service
	WorkerPool       *worker.Pool

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	AnalyzeHandler *handlers.AnalyzeHandler
	JobHandler     *handlers.JobHandler
}

// New creates the application, wiring storage, queue, LLM provider,
// services, workers and handlers.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	storageManager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	queueManager, err := queue.NewManager(
		config.Storage.Badger.QueuePath,
		config.Queue.QueueName,
		config.Queue.VisibilityTimeoutDuration(),
		config.Queue.MaxReceive,
		logger,
	)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	llmService, err := llm.NewService(&config.LLM, logger)
	if err != nil {
		queueManager.Close()
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize LLM service: %w", err)
	}

	extractor := extract.NewExtractor(&config.Extract, logger)
	stageRunner := llm.NewStageRunner(llmService, config.LLM.RateLimit, logger)

	executor := worker.NewExecutor(
		storageManager.JobStorage(),
		storageManager.DocumentStorage(),
		stageRunner,
		worker.RetryPolicy{
			MaxAttempts:    config.Worker.MaxStageRetries,
			InitialBackoff: config.Worker.InitialBackoffDuration(),
			MaxBackoff:     config.Worker.MaxBackoffDuration(),
			Multiplier:     config.Worker.BackoffMultiplier,
		},
		config.Worker.JobCeilingDuration(),
		logger,
	)

	pool := worker.NewPool(
		queueManager,
		executor,
		config.Queue.Concurrency,
		config.Queue.PollIntervalDuration(),
		logger,
	)

	analysisService := analysis.NewService(
		storageManager,
		queueManager,
		extractor,
		config.Worker.StalenessThresholdDuration(),
		logger,
	)

	reportService := report.NewService(logger)

	schedulerService := scheduler.NewService(
		&config.Scheduler,
		storageManager,
		config.Worker.StalenessThresholdDuration(),
		logger,
	)

	app := &App{
		Config:           config,
		Logger:           logger,
		StorageManager:   storageManager,
		QueueManager:     queueManager,
		LLMService:       llmService,
		Extractor:        extractor,
		AnalysisService:  analysisService,
		ReportService:    reportService,
		SchedulerService: schedulerService,
		WorkerPool:       pool,

		APIHandler:     handlers.NewAPIHandler(logger),
		AnalyzeHandler: handlers.NewAnalyzeHandler(analysisService, config.Extract.MaxFileSize, logger),
		JobHandler:     handlers.NewJobHandler(analysisService, reportService, logger),
	}

	logger.Info().
		Str("llm_provider", config.LLM.Provider).
		Int("worker_concurrency", config.Queue.Concurrency).
		Msg("Application initialized")

	return app, nil
}

// Start launches the background components: the worker pool and the
// scheduler sweeps.
func (a *App) Start() error {
	a.WorkerPool.Start()
	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Close stops background components and releases resources, in reverse
// dependency order.
func (a *App) Close() error {
	a.SchedulerService.Stop()
	a.WorkerPool.Stop()

	if err := a.LLMService.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
	}
	if err := a.QueueManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close queue")
	}
	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close storage")
		return err
	}

	a.Logger.Info().Msg("Application shut down")
	return nil
}
