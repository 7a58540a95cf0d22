package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TaskStatus represents the aggregate processing state of a Task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether no further work is expected for the task.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// ContentType names the kind of content the generator is asked to produce.
type ContentType string

// Supported content types
const (
	ContentTypeArticle            ContentType = "article"
	ContentTypeSocialPost         ContentType = "social_post"
	ContentTypeProductDescription ContentType = "product_description"
	ContentTypeNewsletter         ContentType = "newsletter"
)

// IsValid reports whether the content type is supported.
func (c ContentType) IsValid() bool {
	switch c {
	case ContentTypeArticle, ContentTypeSocialPost, ContentTypeProductDescription, ContentTypeNewsletter:
		return true
	default:
		return false
	}
}

// Limits applied to task input.
const (
	MaxDisplayNameLength = 200
	MaxConfigTextLength  = 500
	MaxVersionCount      = 10
)

// GenerationConfig holds the per-task instructions shared by every Item.
type GenerationConfig struct {
	ContentType  ContentType `json:"content_type"`
	Theme        string      `json:"theme,omitempty"`
	Persona      string      `json:"persona,omitempty"`
	Purpose      string      `json:"purpose,omitempty"`
	VersionCount int         `json:"version_count"`
}

// Validate checks the config against the supported content types and
// the version count ceiling. maxVersions <= 0 means MaxVersionCount.
func (c GenerationConfig) Validate(maxVersions int) error {
	if maxVersions <= 0 || maxVersions > MaxVersionCount {
		maxVersions = MaxVersionCount
	}
	if !c.ContentType.IsValid() {
		return NewValidationError("config.content_type", "unsupported content type "+string(c.ContentType))
	}
	if c.VersionCount < 1 || c.VersionCount > maxVersions {
		return NewValidationError("config.version_count", "must be between 1 and the configured maximum")
	}
	for field, value := range map[string]string{
		"config.theme":   c.Theme,
		"config.persona": c.Persona,
		"config.purpose": c.Purpose,
	} {
		if utf8.RuneCountInString(value) > MaxConfigTextLength {
			return NewValidationError(field, "too long")
		}
	}
	return nil
}

// Task is one batch submission containing many Items. Its status is
// derived from its Items and only becomes terminal once every Item is.
type Task struct {
	ID               uuid.UUID        `json:"id"`
	OwnerID          uuid.UUID        `json:"owner_id"`
	DisplayName      string           `json:"display_name"`
	Status           TaskStatus       `json:"status"`
	Config           GenerationConfig `json:"config"`
	CorrelationLabel *string          `json:"correlation_label,omitempty"`
	ErrorMessage     string           `json:"error_message,omitempty"`

	// Cached progress counts, refreshed from Item rows whenever an Item
	// reaches a terminal state. Status reads never rely on them.
	TotalItems     int `json:"total_items"`
	CompletedItems int `json:"completed_items"`
	FailedItems    int `json:"failed_items"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewTask creates a pending Task for the owner. The display name defaults
// to a timestamped label when empty.
func NewTask(ownerID uuid.UUID, displayName string, cfg GenerationConfig, correlationLabel string, itemCount int) (*Task, error) {
	now := time.Now().UTC()
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = "Rewrite " + now.Format("2006-01-02 15:04")
	}

	task := &Task{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		DisplayName: displayName,
		Status:      TaskStatusPending,
		Config:      cfg,
		TotalItems:  itemCount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if label := strings.TrimSpace(correlationLabel); label != "" {
		task.CorrelationLabel = &label
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

// Validate checks the Task's own fields. Config limits are checked by the
// caller, which knows the configured version ceiling.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return NewValidationError("id", ErrInvalidID.Error())
	}
	if t.OwnerID == uuid.Nil {
		return NewValidationError("owner_id", ErrInvalidID.Error())
	}
	if utf8.RuneCountInString(t.DisplayName) > MaxDisplayNameLength {
		return NewValidationError("display_name", "too long")
	}
	if !isValidTaskStatus(t.Status) {
		return NewValidationError("status", ErrInvalidStatus.Error())
	}
	return nil
}

func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}
