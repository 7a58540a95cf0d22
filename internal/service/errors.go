package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/quill-api/internal/credits"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/store"
)

// Common service errors - sentinel errors used across service implementations.
// These errors represent common conditions that callers may want to check for with errors.Is().
//
// Error handling principles:
// 1. Service methods return sentinel errors for expected error conditions
// 2. Unexpected errors are wrapped in service-specific error types
// 3. Callers use errors.Is/errors.As to check for specific error conditions
// 4. The API layer maps service errors to appropriate HTTP status codes
var (
	// ErrNotOwned indicates a resource is owned by a different user than the one making the request.
	// API layer should map this to HTTP 403 Forbidden.
	ErrNotOwned = errors.New("resource is owned by another user")

	// ErrNotReprocessable indicates an item-level reprocess of an item that
	// has not failed. API layer should map this to HTTP 409 Conflict.
	ErrNotReprocessable = errors.New("item is not in a reprocessable state")

	// ErrPersistence indicates an infrastructure fault after credits were
	// debited. The debit has been refunded by the time it is returned.
	// API layer should map this to HTTP 500 with a generic message.
	ErrPersistence = errors.New("failed to persist task")
)

// RewriteServiceError wraps errors from the rewrite service with context.
type RewriteServiceError struct {
	// Operation is the operation that failed (e.g., "create_task", "reprocess")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for RewriteServiceError.
func (e *RewriteServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rewrite service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("rewrite service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *RewriteServiceError) Unwrap() error {
	return e.Err
}

// NewRewriteServiceError creates a new RewriteServiceError.
// Errors callers are expected to branch on are returned unchanged.
func NewRewriteServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrNotOwned),
		errors.Is(err, ErrNotReprocessable),
		errors.Is(err, ErrPersistence),
		errors.Is(err, credits.ErrInsufficientCredits),
		errors.Is(err, domain.ErrValidation):
		return err
	case errors.Is(err, store.ErrTaskNotFound):
		return store.ErrTaskNotFound
	case errors.Is(err, store.ErrItemNotFound):
		return store.ErrItemNotFound
	case errors.Is(err, store.ErrUserNotFound):
		return store.ErrUserNotFound
	}

	return &RewriteServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
