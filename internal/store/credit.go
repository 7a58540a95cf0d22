package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
)

// CreditApplication describes one balance change to append to the ledger.
// Amount is signed: negative for consumes, positive for refunds and rewards.
type CreditApplication struct {
	OwnerID        uuid.UUID
	Kind           domain.CreditKind
	Amount         int
	Reason         string
	RelatedTaskID  *uuid.UUID
	RelatedItemID  *uuid.UUID
	IdempotencyKey string
}

// CreditApplyResult is the outcome of CreditStore.Apply.
type CreditApplyResult struct {
	// Transaction is the ledger row written, or the existing row when
	// Replayed is true.
	Transaction *domain.CreditTransaction
	// Balance is the owner's balance after the call. On
	// ErrInsufficientBalance it is the unchanged current balance.
	Balance int
	// Replayed is true when IdempotencyKey matched an existing row and
	// nothing was written.
	Replayed bool
}

// CreditStore defines the interface for the append-only credit ledger.
type CreditStore interface {
	// Apply locks the owner's balance row, checks that the result stays
	// non-negative, writes the new balance and appends the transaction row
	// in a single database transaction.
	//
	// Returns ErrUserNotFound if the owner does not exist.
	// Returns ErrInsufficientBalance (with the current balance in the result)
	// if the balance would become negative.
	// When IdempotencyKey is set and already recorded for the owner, the
	// existing row is returned with Replayed set and nothing is written.
	Apply(ctx context.Context, app CreditApplication) (CreditApplyResult, error)

	// GetBalance returns the owner's current balance.
	// Returns ErrUserNotFound if the owner does not exist.
	GetBalance(ctx context.Context, ownerID uuid.UUID) (int, error)

	// SumTransactions returns the sum of all ledger amounts for the owner.
	SumTransactions(ctx context.Context, ownerID uuid.UUID) (int, error)

	// ListTransactions returns the owner's ledger rows, newest first, and
	// the total number of rows.
	ListTransactions(
		ctx context.Context,
		ownerID uuid.UUID,
		limit, offset int,
	) ([]*domain.CreditTransaction, int, error)

	// ListOwnerIDs returns every owner that has a balance row.
	ListOwnerIDs(ctx context.Context) ([]uuid.UUID, error)

	// WithTx returns a new CreditStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) CreditStore
}
