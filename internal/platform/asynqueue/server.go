package asynqueue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/phrazzld/quill-api/internal/events"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/redact"
	"github.com/phrazzld/quill-api/internal/task"
)

// ServerConfig configures the asynq worker server.
type ServerConfig struct {
	Queue       string
	Concurrency int
}

// Server consumes item tasks from redis and hands them to an
// ItemProcessor.
type Server struct {
	server    *asynq.Server
	processor task.ItemProcessor
	logger    *slog.Logger
}

// NewServer creates a worker server for the configured queue.
func NewServer(redisOpt asynq.RedisConnOpt, cfg ServerConfig, processor task.ItemProcessor, log *slog.Logger) *Server {
	if cfg.Queue == "" {
		cfg.Queue = "default"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	log = log.With("component", "asynq_server", "queue", cfg.Queue)

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.Concurrency,
		Queues:          map[string]int{cfg.Queue: 1},
		Logger:          slogAdapter{log},
		ShutdownTimeout: 10 * time.Second,
	})
	return &Server{server: server, processor: processor, logger: log}
}

// Handler returns the mux routing item tasks to the processor.
func (s *Server) Handler() asynq.Handler {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeProcessItem, s.processItem)
	return mux
}

// Start starts the workers in the background.
func (s *Server) Start() error {
	return s.server.Start(s.Handler())
}

// Shutdown stops fetching new tasks and waits for active ones.
func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) processItem(ctx context.Context, t *asynq.Task) error {
	event, err := events.UnmarshalDispatchEvent(t.Payload())
	if err != nil {
		return fmt.Errorf("invalid dispatch payload: %v: %w", err, asynq.SkipRetry)
	}

	log := s.logger.With("item_id", event.ItemID)
	if id, ok := asynq.GetTaskID(ctx); ok {
		log = log.With("asynq_task_id", id)
	}
	ctx = logger.WithLogger(ctx, log)

	start := time.Now()
	if err := s.processor.ProcessItem(ctx, event.ItemID); err != nil {
		log.Error("item task failed",
			redact.ErrorAttr(err),
			"duration_ms", time.Since(start).Milliseconds())
		return err
	}
	log.Debug("item task finished", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// slogAdapter implements asynq.Logger on top of slog.
type slogAdapter struct {
	l *slog.Logger
}

func (a slogAdapter) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a slogAdapter) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a slogAdapter) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a slogAdapter) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }

func (a slogAdapter) Fatal(args ...interface{}) {
	a.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}
