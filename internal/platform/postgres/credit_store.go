package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/store"
)

const creditTransactionColumns = `id, owner_id, kind, amount, balance_after, reason,
	related_task_id, related_item_id, idempotency_key, created_at`

// PostgresCreditStore implements the store.CreditStore interface. The
// owner's users row is the per-owner lock: every mutation takes it with
// SELECT ... FOR UPDATE, so different owners never block each other.
type PostgresCreditStore struct {
	db store.DBTX
}

// NewPostgresCreditStore creates a new PostgreSQL implementation of the CreditStore interface.
func NewPostgresCreditStore(db store.DBTX) *PostgresCreditStore {
	return &PostgresCreditStore{db: db}
}

// Ensure PostgresCreditStore implements store.CreditStore interface
var _ store.CreditStore = (*PostgresCreditStore)(nil)

// WithTx implements store.CreditStore.WithTx
func (s *PostgresCreditStore) WithTx(tx *sql.Tx) store.CreditStore {
	return &PostgresCreditStore{db: tx}
}

// maxApplyAttempts bounds retries of a ledger write that hit a deadlock or
// serialization failure.
const maxApplyAttempts = 3

// Apply implements store.CreditStore.Apply
func (s *PostgresCreditStore) Apply(ctx context.Context, app store.CreditApplication) (store.CreditApplyResult, error) {
	log := logger.FromContext(ctx)

	// Inside a caller's transaction the whole transaction is already
	// aborted, so only a store that owns its transaction retries.
	_, ownsTx := s.db.(*sql.DB)

	for attempt := 1; ; attempt++ {
		result, err := s.apply(ctx, app)
		if err == nil || !ownsTx || !IsRetryable(err) || attempt == maxApplyAttempts {
			return result, err
		}
		log.Warn("retrying credit transaction",
			"owner_id", app.OwnerID,
			"attempt", attempt,
			"error", err)
	}
}

func (s *PostgresCreditStore) apply(ctx context.Context, app store.CreditApplication) (store.CreditApplyResult, error) {
	log := logger.FromContext(ctx)

	if !app.Kind.IsValid() {
		return store.CreditApplyResult{}, fmt.Errorf("%w: unknown credit kind %q", store.ErrInvalidEntity, app.Kind)
	}

	var result store.CreditApplyResult
	err := store.InTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var balance int
		err := tx.QueryRowContext(ctx,
			`SELECT credit_balance FROM users WHERE id = $1 FOR UPDATE`, app.OwnerID,
		).Scan(&balance)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrUserNotFound
		}
		if err != nil {
			return MapError(err)
		}

		if app.IdempotencyKey != "" {
			existing, err := scanCreditTransaction(tx.QueryRowContext(ctx, `
				SELECT `+creditTransactionColumns+`
				FROM credit_transactions
				WHERE owner_id = $1 AND idempotency_key = $2`,
				app.OwnerID, app.IdempotencyKey,
			))
			switch {
			case err == nil:
				result = store.CreditApplyResult{Transaction: existing, Balance: balance, Replayed: true}
				return nil
			case !errors.Is(err, sql.ErrNoRows):
				return MapError(err)
			}
		}

		next := balance + app.Amount
		if next < 0 {
			result.Balance = balance
			return store.ErrInsufficientBalance
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET credit_balance = $2, updated_at = $3 WHERE id = $1`,
			app.OwnerID, next, now,
		); err != nil {
			return MapError(err)
		}

		txn := &domain.CreditTransaction{
			ID:             uuid.New(),
			OwnerID:        app.OwnerID,
			Kind:           app.Kind,
			Amount:         app.Amount,
			BalanceAfter:   next,
			Reason:         app.Reason,
			RelatedTaskID:  app.RelatedTaskID,
			RelatedItemID:  app.RelatedItemID,
			IdempotencyKey: app.IdempotencyKey,
			CreatedAt:      now,
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO credit_transactions (`+creditTransactionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			txn.ID, txn.OwnerID, txn.Kind, txn.Amount, txn.BalanceAfter, txn.Reason,
			nullUUID(txn.RelatedTaskID), nullUUID(txn.RelatedItemID),
			sql.NullString{String: txn.IdempotencyKey, Valid: txn.IdempotencyKey != ""},
			txn.CreatedAt,
		); err != nil {
			return MapError(err)
		}

		result = store.CreditApplyResult{Transaction: txn, Balance: next}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientBalance) || errors.Is(err, store.ErrUserNotFound) {
			return result, err
		}
		log.Error("failed to apply credit transaction",
			"owner_id", app.OwnerID,
			"kind", app.Kind,
			"amount", app.Amount,
			"error", err)
		return result, store.NewStoreError("credit_transaction", "apply", "failed to apply credit transaction", err)
	}
	return result, nil
}

// GetBalance implements store.CreditStore.GetBalance
func (s *PostgresCreditStore) GetBalance(ctx context.Context, ownerID uuid.UUID) (int, error) {
	var balance int
	err := s.db.QueryRowContext(ctx, `SELECT credit_balance FROM users WHERE id = $1`, ownerID).
		Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrUserNotFound
	}
	if err != nil {
		return 0, store.NewStoreError("user", "get", "failed to load balance", MapError(err))
	}
	return balance, nil
}

// SumTransactions implements store.CreditStore.SumTransactions
func (s *PostgresCreditStore) SumTransactions(ctx context.Context, ownerID uuid.UUID) (int, error) {
	var sum int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE owner_id = $1`, ownerID,
	).Scan(&sum)
	if err != nil {
		return 0, store.NewStoreError("credit_transaction", "sum", "failed to sum transactions", MapError(err))
	}
	return sum, nil
}

// ListTransactions implements store.CreditStore.ListTransactions
func (s *PostgresCreditStore) ListTransactions(
	ctx context.Context,
	ownerID uuid.UUID,
	limit, offset int,
) ([]*domain.CreditTransaction, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM credit_transactions WHERE owner_id = $1`, ownerID,
	).Scan(&total)
	if err != nil {
		return nil, 0, store.NewStoreError("credit_transaction", "list", "failed to count transactions", MapError(err))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+creditTransactionColumns+`
		FROM credit_transactions
		WHERE owner_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, 0, store.NewStoreError("credit_transaction", "list", "failed to query transactions", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var txns []*domain.CreditTransaction
	for rows.Next() {
		txn, err := scanCreditTransaction(rows)
		if err != nil {
			return nil, 0, store.NewStoreError("credit_transaction", "list", "failed to scan transaction", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, store.NewStoreError("credit_transaction", "list", "failed to iterate transactions", err)
	}
	return txns, total, nil
}

// ListOwnerIDs implements store.CreditStore.ListOwnerIDs
func (s *PostgresCreditStore) ListOwnerIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, store.NewStoreError("user", "list", "failed to query owners", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, store.NewStoreError("user", "list", "failed to scan owner id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("user", "list", "failed to iterate owners", err)
	}
	return ids, nil
}

func scanCreditTransaction(row rowScanner) (*domain.CreditTransaction, error) {
	var (
		txn    domain.CreditTransaction
		taskID uuid.NullUUID
		itemID uuid.NullUUID
		key    sql.NullString
	)
	err := row.Scan(
		&txn.ID, &txn.OwnerID, &txn.Kind, &txn.Amount, &txn.BalanceAfter, &txn.Reason,
		&taskID, &itemID, &key, &txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if taskID.Valid {
		id := taskID.UUID
		txn.RelatedTaskID = &id
	}
	if itemID.Valid {
		id := itemID.UUID
		txn.RelatedItemID = &id
	}
	txn.IdempotencyKey = key.String
	return &txn, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
