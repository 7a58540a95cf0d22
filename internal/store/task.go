package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
)

// TaskBundle is everything written when a Task is submitted: the Task,
// its Items and every Item's placeholder Versions.
type TaskBundle struct {
	Task     *domain.Task
	Items    []*domain.Item
	Versions map[uuid.UUID][]*domain.Version
}

// TaskStore defines the interface for Task, Item and Version persistence.
//
// Every mutating method is atomic on its own: implementations open a
// transaction when called on a plain connection and reuse the caller's
// transaction when obtained through WithTx.
type TaskStore interface {
	// CreateTaskBundle inserts the Task, its Items and their placeholder
	// Versions in one transaction. Either all rows exist afterwards or none.
	CreateTaskBundle(ctx context.Context, bundle TaskBundle) error

	// GetTask retrieves a task by ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListTasksByOwner returns the owner's tasks, newest first, and the
	// total number of tasks the owner has.
	ListTasksByOwner(
		ctx context.Context,
		ownerID uuid.UUID,
		limit, offset int,
	) ([]*domain.Task, int, error)

	// GetItem retrieves an item by ID.
	// Returns ErrItemNotFound if the item does not exist.
	GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error)

	// ListItemsByTask returns all items of a task in submission order.
	ListItemsByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.Item, error)

	// ListVersionsByTask returns every version of the task's items keyed
	// by item ID, each slice ordered by position.
	ListVersionsByTask(ctx context.Context, taskID uuid.UUID) (map[uuid.UUID][]*domain.Version, error)

	// ListVersionsByItem returns the item's versions ordered by position.
	ListVersionsByItem(ctx context.Context, itemID uuid.UUID) ([]*domain.Version, error)

	// MarkItemProcessing moves a pending or processing item to processing,
	// stamps started_at and moves its task out of pending. It reports false
	// when the item is already terminal.
	MarkItemProcessing(ctx context.Context, itemID uuid.UUID) (bool, error)

	// CompleteItem writes generated content into the item's placeholders
	// by position. Placeholders without content are marked failed with
	// domain.ErrMsgVersionNotGenerated. The item becomes completed and the
	// task's progress is refreshed.
	// Returns ErrStateConflict if the item is already terminal or has
	// moved past attempt.
	CompleteItem(ctx context.Context, itemID uuid.UUID, attempt int, contents []domain.VersionContent) error

	// FailItem marks the item and its still-generating versions failed
	// and refreshes the task's progress. It reports whether the item is
	// failed afterwards at attempt. A completed item, or one that has moved
	// past attempt, is left untouched and yields false.
	FailItem(ctx context.Context, itemID uuid.UUID, attempt int, message string) (bool, error)

	// ResetItemForReprocess moves a failed item back to pending with its
	// attempt incremented, clears its versions back to generating and
	// moves the task back to processing. It returns the new attempt.
	// Returns ErrStateConflict if the item is not failed.
	ResetItemForReprocess(ctx context.Context, itemID uuid.UUID) (int, error)

	// RefreshTaskProgress recomputes the task's cached counts and status
	// from its item rows under a row lock on the task.
	RefreshTaskProgress(ctx context.Context, taskID uuid.UUID) (*domain.Task, error)

	// ListItemIDsByStatus returns IDs of items in the given status whose
	// last update is older than olderThan. A zero olderThan matches all.
	ListItemIDsByStatus(
		ctx context.Context,
		status domain.ItemStatus,
		olderThan time.Time,
	) ([]uuid.UUID, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}
