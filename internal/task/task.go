package task

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
)

// Job is one unit of background work: process a single Item.
type Job struct {
	ItemID     uuid.UUID
	EnqueuedAt time.Time
}

// ItemProcessor handles one Item. Implementations must tolerate repeated
// calls for the same Item.
type ItemProcessor interface {
	ProcessItem(ctx context.Context, itemID uuid.UUID) error
}

// ItemProcessorFunc adapts a function to the ItemProcessor interface.
type ItemProcessorFunc func(ctx context.Context, itemID uuid.UUID) error

// ProcessItem implements ItemProcessor.
func (f ItemProcessorFunc) ProcessItem(ctx context.Context, itemID uuid.UUID) error {
	return f(ctx, itemID)
}

// Submitter accepts item IDs for processing. *TaskRunner and the redis
// dispatcher implement it.
type Submitter interface {
	Submit(ctx context.Context, itemID uuid.UUID) error
}

// ItemSource finds Items that need (re)queuing. store.TaskStore
// satisfies it.
type ItemSource interface {
	// ListItemIDsByStatus returns IDs of items in the given status whose
	// last update is older than olderThan. A zero olderThan matches all.
	ListItemIDsByStatus(ctx context.Context, status domain.ItemStatus, olderThan time.Time) ([]uuid.UUID, error)
}

// TaskQueueReader provides read-only access to the job channel
// allowing workers to consume jobs without the ability to enqueue
type TaskQueueReader interface {
	// GetChannel returns a read-only channel for consuming jobs
	GetChannel() <-chan Job
}

// TaskQueueWriter provides write access to the job queue
// allowing services to enqueue jobs for processing
type TaskQueueWriter interface {
	// Enqueue adds a job to the queue for processing
	// Returns an error if the queue is full or closed
	Enqueue(job Job) error

	// Close closes the job queue, preventing further submission
	Close()
}
