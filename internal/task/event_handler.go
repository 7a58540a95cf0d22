package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/events"
)

// DispatchEventHandler implements the events.EventHandler interface by
// submitting dispatched items to a Submitter.
type DispatchEventHandler struct {
	runner Submitter
	logger *slog.Logger
}

// NewDispatchEventHandler creates an event handler that submits every
// dispatched item to the given runner.
func NewDispatchEventHandler(runner Submitter, logger *slog.Logger) *DispatchEventHandler {
	return &DispatchEventHandler{
		runner: runner,
		logger: logger.With("component", "dispatch_event_handler"),
	}
}

// HandleEvent submits the event's item. Events of other types are ignored.
func (h *DispatchEventHandler) HandleEvent(ctx context.Context, event *events.DispatchEvent) error {
	if event.Type != events.TypeItemDispatch {
		h.logger.Debug("ignoring event with unsupported type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}
	if event.ItemID == uuid.Nil {
		return fmt.Errorf("dispatch event %s has no item id", event.ID)
	}

	if err := h.runner.Submit(ctx, event.ItemID); err != nil {
		// The item row stays pending; recovery or the stuck monitor picks
		// it up later.
		h.logger.Warn("failed to submit item",
			"error", err,
			"item_id", event.ItemID,
			"event_id", event.ID)
		return fmt.Errorf("failed to submit item: %w", err)
	}

	h.logger.Debug("item submitted",
		"item_id", event.ItemID,
		"task_id", event.TaskID,
		"attempt", event.Attempt,
		"event_id", event.ID)
	return nil
}

// Ensure DispatchEventHandler implements events.EventHandler
var _ events.EventHandler = (*DispatchEventHandler)(nil)
