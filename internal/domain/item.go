package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ItemStatus represents the processing state of one Item
type ItemStatus string

// Possible item status values
const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

// IsTerminal reports whether the item has finished, successfully or not.
func (s ItemStatus) IsTerminal() bool {
	return s == ItemStatusCompleted || s == ItemStatusFailed
}

// MaxSourceRefLength bounds the caller-supplied source reference.
const MaxSourceRefLength = 512

// SourceSnapshot is the immutable copy of the source content captured at
// submission. The source is never fetched again, so reprocessing an Item
// regenerates from exactly this content.
type SourceSnapshot struct {
	Title      string            `json:"title,omitempty"`
	Body       string            `json:"body"`
	URL        string            `json:"url,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Item is one source content unit rewritten independently within a Task.
type Item struct {
	ID             uuid.UUID      `json:"id"`
	TaskID         uuid.UUID      `json:"task_id"`
	SourceRef      string         `json:"source_ref"`
	SourceSnapshot SourceSnapshot `json:"source_snapshot"`
	Status         ItemStatus     `json:"status"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	// Attempt starts at 1 and is incremented by every reprocess. Refunds
	// are keyed on (item, attempt) so a failure refunds at most once.
	Attempt     int        `json:"attempt"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewItem creates a pending Item for the given task.
func NewItem(taskID uuid.UUID, sourceRef string, snapshot SourceSnapshot) (*Item, error) {
	now := time.Now().UTC()
	item := &Item{
		ID:             uuid.New(),
		TaskID:         taskID,
		SourceRef:      strings.TrimSpace(sourceRef),
		SourceSnapshot: snapshot,
		Status:         ItemStatusPending,
		Attempt:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// Validate checks if the Item has valid data.
func (i *Item) Validate() error {
	if i.ID == uuid.Nil {
		return NewValidationError("item.id", ErrInvalidID.Error())
	}
	if i.TaskID == uuid.Nil {
		return NewValidationError("item.task_id", ErrInvalidID.Error())
	}
	if i.SourceRef == "" {
		return NewValidationError("item.source_ref", "cannot be empty")
	}
	if len(i.SourceRef) > MaxSourceRefLength {
		return NewValidationError("item.source_ref", "too long")
	}
	if strings.TrimSpace(i.SourceSnapshot.Body) == "" {
		return NewValidationError("item.source_snapshot.body", ErrEmptyContent.Error())
	}
	if !isValidItemStatus(i.Status) {
		return NewValidationError("item.status", ErrInvalidStatus.Error())
	}
	if i.Attempt < 1 {
		return NewValidationError("item.attempt", "must be positive")
	}
	return nil
}

func isValidItemStatus(status ItemStatus) bool {
	switch status {
	case ItemStatusPending, ItemStatusProcessing, ItemStatusCompleted, ItemStatusFailed:
		return true
	default:
		return false
	}
}
