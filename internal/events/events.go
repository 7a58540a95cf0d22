package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TypeItemDispatch requests that one Item be processed.
const TypeItemDispatch = "item.dispatch"

// DispatchEvent asks a worker to process one Item. It carries only
// identifiers; the worker reloads the Item from the store, so delivering
// the same event twice is harmless.
type DispatchEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type indicates what the receiver should do
	Type string `json:"type"`

	ItemID  uuid.UUID `json:"item_id"`
	TaskID  uuid.UUID `json:"task_id"`
	OwnerID uuid.UUID `json:"owner_id"`

	// Attempt is the Item attempt this event was emitted for
	Attempt int `json:"attempt"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewDispatchEvent creates an item dispatch event.
func NewDispatchEvent(itemID, taskID, ownerID uuid.UUID, attempt int) *DispatchEvent {
	return &DispatchEvent{
		ID:        uuid.New(),
		Type:      TypeItemDispatch,
		ItemID:    itemID,
		TaskID:    taskID,
		OwnerID:   ownerID,
		Attempt:   attempt,
		CreatedAt: time.Now().UTC(),
	}
}

// Marshal encodes the event for a message broker.
func (e *DispatchEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalDispatchEvent decodes an event produced by Marshal.
func UnmarshalDispatchEvent(data []byte) (*DispatchEvent, error) {
	var e DispatchEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// EventHandler defines an interface for components that can handle events.
// Handlers are responsible for processing events and taking appropriate actions.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *DispatchEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *DispatchEvent) error
}
