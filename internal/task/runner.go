package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process items
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory job queue
	QueueSize int

	// StuckItemAge defines how long an item can sit in pending or
	// processing without an update before it is requeued
	StuckItemAge time.Duration

	// StuckCheckInterval defines how often to check for stuck items
	// If zero, defaults to 1 minute
	StuckCheckInterval time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:        2,
		QueueSize:          100,
		StuckItemAge:       10 * time.Minute,
		StuckCheckInterval: time.Minute,
	}
}

// TaskRunner manages in-process background item processing.
type TaskRunner struct {
	queue   *TaskQueue
	pool    *WorkerPool
	monitor *Monitor
	logger  *slog.Logger

	// queued holds items that are buffered or being processed, so that
	// recovery and the stuck monitor do not queue them twice.
	mu     sync.Mutex
	queued map[uuid.UUID]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTaskRunner creates a new TaskRunner
func NewTaskRunner(
	source ItemSource,
	processor ItemProcessor,
	config TaskRunnerConfig,
	logger *slog.Logger,
) *TaskRunner {
	logger = logger.With("component", "task_runner")

	ctx, cancel := context.WithCancel(context.Background())
	r := &TaskRunner{
		queue:  NewTaskQueue(config.QueueSize, logger),
		logger: logger,
		queued: make(map[uuid.UUID]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}

	r.pool = NewWorkerPool(r.queue, ItemProcessorFunc(func(ctx context.Context, itemID uuid.UUID) error {
		defer r.release(itemID)
		return processor.ProcessItem(ctx, itemID)
	}), WorkerPoolConfig{WorkerCount: config.WorkerCount}, logger)
	r.monitor = NewMonitor(source, r, config.StuckItemAge, config.StuckCheckInterval, logger)

	return r
}

// SetErrorHandler allows setting a custom error handler function
func (r *TaskRunner) SetErrorHandler(handler func(job Job, err error)) {
	r.pool.SetErrorHandler(handler)
}

// Submit queues an item for processing. Submitting an item that is
// already queued or in flight is a no-op.
func (r *TaskRunner) Submit(ctx context.Context, itemID uuid.UUID) error {
	r.mu.Lock()
	if _, ok := r.queued[itemID]; ok {
		r.mu.Unlock()
		r.logger.Debug("item already queued", "item_id", itemID)
		return nil
	}
	r.queued[itemID] = struct{}{}
	r.mu.Unlock()

	if err := r.queue.Enqueue(Job{ItemID: itemID, EnqueuedAt: time.Now().UTC()}); err != nil {
		r.release(itemID)
		return fmt.Errorf("failed to enqueue item %s: %w", itemID, err)
	}
	return nil
}

func (r *TaskRunner) release(itemID uuid.UUID) {
	r.mu.Lock()
	delete(r.queued, itemID)
	r.mu.Unlock()
}

// Start recovers unfinished items, then starts the workers and the
// stuck item monitor.
func (r *TaskRunner) Start() error {
	if _, err := r.monitor.Recover(r.ctx); err != nil {
		return fmt.Errorf("failed to recover items: %w", err)
	}

	r.pool.Start()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.monitor.Run(r.ctx)
	}()

	return nil
}

// Stop gracefully shuts down the task runner. In-flight items are left
// in processing for the next start to recover.
func (r *TaskRunner) Stop() {
	r.cancel()
	r.wg.Wait()
	r.pool.Stop()
	r.queue.Close()
}

// CheckStuck runs one stuck item check immediately.
func (r *TaskRunner) CheckStuck(ctx context.Context) (int, error) {
	return r.monitor.CheckStuck(ctx)
}

var _ Submitter = (*TaskRunner)(nil)
