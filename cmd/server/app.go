package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/phrazzld/quill-api/internal/config"
	"github.com/phrazzld/quill-api/internal/credits"
	"github.com/phrazzld/quill-api/internal/events"
	"github.com/phrazzld/quill-api/internal/generation"
	"github.com/phrazzld/quill-api/internal/platform/asynqueue"
	"github.com/phrazzld/quill-api/internal/platform/gemini"
	"github.com/phrazzld/quill-api/internal/platform/postgres"
	"github.com/phrazzld/quill-api/internal/redact"
	"github.com/phrazzld/quill-api/internal/service"
	"github.com/phrazzld/quill-api/internal/service/auth"
	"github.com/phrazzld/quill-api/internal/store"
	"github.com/phrazzld/quill-api/internal/task"
)

// Queue backends selectable with queue.backend.
const (
	backendMemory = "memory"
	backendRedis  = "redis"
)

// appDeps are the infrastructure pieces newApplication builds on. serve
// fills them from Postgres and Gemini; tests use in-memory fakes.
type appDeps struct {
	tasks   store.TaskStore
	credits store.CreditStore
	users   store.UserStore
	client  generation.Client

	// redisOpt is required when the queue backend is redis.
	redisOpt asynq.RedisConnOpt
}

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	jwtService     auth.JWTService
	ledger         credits.Ledger
	rewriteService service.RewriteService
	accountService service.AccountService
	emitter        *events.Bus
	taskStore      store.TaskStore

	// memory backend
	taskRunner *task.TaskRunner

	// redis backend
	dispatcher  *asynqueue.Dispatcher
	queueServer *asynqueue.Server
	monitor     *task.Monitor

	monitorCancel context.CancelFunc
	monitorDone   sync.WaitGroup
}

// newPostgresDeps builds the production dependencies on top of db.
func newPostgresDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (appDeps, error) {
	client, err := gemini.NewClient(ctx, logger.With("component", "gemini_client"), cfg.LLM)
	if err != nil {
		return appDeps{}, fmt.Errorf("failed to initialize generation client: %w", err)
	}
	logger.Info("generation client initialized", "model", cfg.LLM.ModelName)

	deps := appDeps{
		tasks:   postgres.NewPostgresTaskStore(db),
		credits: postgres.NewPostgresCreditStore(db),
		users:   postgres.NewPostgresUserStore(db),
		client:  client,
	}
	if cfg.Queue.Backend == backendRedis {
		deps.redisOpt = asynq.RedisClientOpt{Addr: cfg.Queue.RedisAddr, DB: cfg.Queue.RedisDB}
	}
	return deps, nil
}

// newApplication wires services, handlers and the dispatch backend. Nothing
// is started until Start is called.
func newApplication(cfg *config.Config, logger *slog.Logger, db *sql.DB, deps appDeps) (*application, error) {
	app := &application{
		config:    cfg,
		logger:    logger,
		db:        db,
		taskStore: deps.tasks,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	app.ledger, err = credits.NewLedger(deps.credits, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}

	prompts, err := generation.NewPromptBuilder(cfg.LLM.PromptTemplatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt template: %w", err)
	}

	app.emitter = events.NewBus(logger)

	app.rewriteService, err = service.NewRewriteService(
		deps.tasks,
		app.ledger,
		deps.client,
		prompts,
		app.emitter,
		service.RewriteConfig{
			UnitCost:    cfg.Credits.UnitCost,
			MaxVersions: cfg.Task.MaxVersions,
			MaxItems:    cfg.Task.MaxItems,
			Timeouts: generation.Timeouts{
				Total: cfg.LLM.TotalTimeout,
				Idle:  cfg.LLM.IdleTimeout,
			},
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rewrite service: %w", err)
	}

	app.accountService, err = service.NewAccountService(deps.users, app.ledger, cfg.Credits.SignupGrant, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create account service: %w", err)
	}

	switch cfg.Queue.Backend {
	case backendRedis:
		if deps.redisOpt == nil {
			return nil, fmt.Errorf("redis backend selected without a redis connection")
		}
		app.dispatcher = asynqueue.NewDispatcher(deps.redisOpt, cfg.Queue.QueueName, logger)
		app.emitter.RegisterHandler(app.dispatcher)
		app.queueServer = asynqueue.NewServer(deps.redisOpt, asynqueue.ServerConfig{
			Queue:       cfg.Queue.QueueName,
			Concurrency: cfg.Task.WorkerCount,
		}, app.rewriteService, logger)
		app.monitor = task.NewMonitor(deps.tasks, app.dispatcher, cfg.Task.StuckItemAge, cfg.Task.StuckInterval, logger)
	default:
		app.taskRunner = task.NewTaskRunner(deps.tasks, app.rewriteService, task.TaskRunnerConfig{
			WorkerCount:        cfg.Task.WorkerCount,
			QueueSize:          cfg.Task.QueueSize,
			StuckItemAge:       cfg.Task.StuckItemAge,
			StuckCheckInterval: cfg.Task.StuckInterval,
		}, logger)
		app.emitter.RegisterHandler(task.NewDispatchEventHandler(app.taskRunner, logger))
	}

	logger.Info("application initialized", "queue_backend", cfg.Queue.Backend)
	return app, nil
}

// Start starts the background workers. Unfinished items from a previous
// run are requeued before new work is accepted.
func (app *application) Start(ctx context.Context) error {
	if app.taskRunner != nil {
		if err := app.taskRunner.Start(); err != nil {
			return fmt.Errorf("failed to start task runner: %w", err)
		}
		return nil
	}

	if err := app.queueServer.Start(); err != nil {
		return fmt.Errorf("failed to start queue server: %w", err)
	}
	recovered, err := app.monitor.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover items: %w", err)
	}
	app.logger.Info("requeued unfinished items", "count", recovered)

	monitorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	app.monitorCancel = cancel
	app.monitorDone.Add(1)
	go func() {
		defer app.monitorDone.Done()
		app.monitor.Run(monitorCtx)
	}()
	return nil
}

// Run starts the workers and serves HTTP until ctx is cancelled.
func (app *application) Run(ctx context.Context) error {
	if err := app.Start(ctx); err != nil {
		return err
	}
	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}
	if app.monitorCancel != nil {
		app.monitorCancel()
		app.monitorDone.Wait()
	}
	if app.queueServer != nil {
		app.queueServer.Shutdown()
	}
	if app.dispatcher != nil {
		if err := app.dispatcher.Close(); err != nil {
			app.logger.Error("error closing dispatcher", "error", redact.Error(err))
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", redact.Error(err))
		}
	}

	app.logger.Info("application shutdown completed")
}
