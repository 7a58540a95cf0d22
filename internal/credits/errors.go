package credits

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientCredits is matched by *InsufficientCreditsError.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrInvalidAmount is returned when a ledger amount is not positive.
	ErrInvalidAmount = errors.New("credit amount must be positive")
)

// InsufficientCreditsError reports a rejected consume together with the
// amounts needed to explain the shortfall.
type InsufficientCreditsError struct {
	Current  int
	Required int
}

// Error implements the error interface.
func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("%s: balance %d, required %d", ErrInsufficientCredits, e.Current, e.Required)
}

// Is lets errors.Is(err, ErrInsufficientCredits) succeed.
func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

// LedgerError wraps unexpected failures from the ledger with context.
type LedgerError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for LedgerError.
func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credit ledger %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("credit ledger %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *LedgerError) Unwrap() error {
	return e.Err
}

func newLedgerError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	return &LedgerError{Operation: operation, Message: message, Err: err}
}
