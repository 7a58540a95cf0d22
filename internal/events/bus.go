package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/redact"
)

var (
	// ErrNoHandlers is returned when an event is emitted before any
	// dispatch backend registered. The Item stays pending for recovery.
	ErrNoHandlers = errors.New("no dispatch handlers registered")

	// ErrInvalidEvent is returned for events that name no Item.
	ErrInvalidEvent = errors.New("invalid dispatch event")
)

// HandlerError reports one handler's failure to take an event.
type HandlerError struct {
	Index int
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("dispatch handler %d: %v", e.Index, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Bus fans dispatch events out to the registered backends in
// registration order. It implements EventEmitter.
type Bus struct {
	mu       sync.RWMutex
	handlers []EventHandler
	logger   *slog.Logger
}

// NewBus creates a bus with no handlers.
func NewBus(log *slog.Logger) *Bus {
	return &Bus{logger: log.With("component", "dispatch_bus")}
}

// RegisterHandler adds a backend that receives every later event.
func (b *Bus) RegisterHandler(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
	b.logger.Debug("registered dispatch handler", "handler_count", len(b.handlers))
}

// EmitEvent hands event to every registered handler, even after one fails.
// Failures come back joined, each wrapped in a *HandlerError.
func (b *Bus) EmitEvent(ctx context.Context, event *DispatchEvent) error {
	if event == nil || event.ItemID == uuid.Nil {
		return ErrInvalidEvent
	}

	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers...)
	b.mu.RUnlock()

	log := logger.FromContextOrDefault(ctx, b.logger).With(
		"event_id", event.ID,
		"item_id", event.ItemID,
		"attempt", event.Attempt)

	if len(handlers) == 0 {
		log.Warn("dropping dispatch event, no handlers registered")
		return ErrNoHandlers
	}

	var errs []error
	for i, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			log.Error("dispatch handler rejected event", redact.ErrorAttr(err), "handler_index", i)
			errs = append(errs, &HandlerError{Index: i, Err: err})
		}
	}
	if len(errs) == 0 {
		log.Debug("item dispatched", "handler_count", len(handlers))
	}
	return errors.Join(errs...)
}

var _ EventEmitter = (*Bus)(nil)
