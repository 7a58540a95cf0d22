package asynqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/phrazzld/quill-api/internal/events"
	"github.com/phrazzld/quill-api/internal/task"
)

// TypeProcessItem is the asynq task type carrying a dispatch event.
const TypeProcessItem = "item:process"

// Dispatcher enqueues items onto an asynq queue. It implements both
// events.EventHandler and task.Submitter.
//
// Every item owns a single asynq task ID, so the broker holds at most one
// live copy of an item however often it is dispatched or resubmitted.
type Dispatcher struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher writing to the named queue.
func NewDispatcher(redisOpt asynq.RedisConnOpt, queue string, logger *slog.Logger) *Dispatcher {
	if queue == "" {
		queue = "default"
	}
	return &Dispatcher{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		queue:     queue,
		logger:    logger.With("component", "asynq_dispatcher", "queue", queue),
	}
}

// TaskID returns the asynq task ID used for an item.
func TaskID(itemID uuid.UUID) string {
	return "item:" + itemID.String()
}

// HandleEvent enqueues the event's item. A copy of the item that is still
// queued or running absorbs the event, since the handler always works from
// the item's current row.
func (d *Dispatcher) HandleEvent(ctx context.Context, event *events.DispatchEvent) error {
	if event.Type != events.TypeItemDispatch {
		return nil
	}
	return d.enqueue(ctx, event)
}

// Submit enqueues an item found by recovery or the stuck monitor.
func (d *Dispatcher) Submit(ctx context.Context, itemID uuid.UUID) error {
	return d.enqueue(ctx, events.NewDispatchEvent(itemID, uuid.Nil, uuid.Nil, 0))
}

func (d *Dispatcher) enqueue(ctx context.Context, event *events.DispatchEvent) error {
	payload, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode dispatch event: %w", err)
	}

	id := TaskID(event.ItemID)
	log := d.logger.With("item_id", event.ItemID, "attempt", event.Attempt)
	for try := 0; try < 2; try++ {
		_, err = d.client.EnqueueContext(ctx, asynq.NewTask(TypeProcessItem, payload),
			asynq.TaskID(id), asynq.Queue(d.queue), asynq.MaxRetry(0))
		if err == nil {
			log.Debug("item enqueued", "task_id", id)
			return nil
		}
		if !errors.Is(err, asynq.ErrTaskIDConflict) {
			return fmt.Errorf("failed to enqueue item %s: %w", event.ItemID, err)
		}

		cleared, inspectErr := d.clearArchived(id)
		if inspectErr != nil {
			return fmt.Errorf("failed to inspect task for item %s: %w", event.ItemID, inspectErr)
		}
		if !cleared {
			break
		}
	}

	log.Debug("item already enqueued", "task_id", id)
	return nil
}

// clearArchived deletes the item's task when it sits in the archive, which
// is where a failed copy ends up with retries disabled. It reports whether
// the ID is free again.
func (d *Dispatcher) clearArchived(id string) (bool, error) {
	info, err := d.inspector.GetTaskInfo(d.queue, id)
	if errors.Is(err, asynq.ErrTaskNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if info.State != asynq.TaskStateArchived {
		return false, nil
	}

	err = d.inspector.DeleteTask(d.queue, id)
	if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return false, err
	}
	d.logger.Debug("deleted archived item task", "task_id", id)
	return true, nil
}

// Close closes the redis connections.
func (d *Dispatcher) Close() error {
	return errors.Join(d.client.Close(), d.inspector.Close())
}

var (
	_ events.EventHandler = (*Dispatcher)(nil)
	_ task.Submitter      = (*Dispatcher)(nil)
)
