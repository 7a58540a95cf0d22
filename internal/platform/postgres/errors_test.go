package postgres_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/quill-api/internal/platform/postgres"
	"github.com/phrazzld/quill-api/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, store.ErrNotFound},
		{"unique", &pgconn.PgError{Code: "23505"}, store.ErrDuplicate},
		{"foreign key", &pgconn.PgError{Code: "23503", ConstraintName: "items_task_id_fkey"}, store.ErrInvalidEntity},
		{"not null", &pgconn.PgError{Code: "23502", ColumnName: "status"}, store.ErrInvalidEntity},
		{"check", &pgconn.PgError{Code: "23514", ConstraintName: "items_attempt_check"}, store.ErrInvalidEntity},
		{"balance check", &pgconn.PgError{Code: "23514", ConstraintName: "users_credit_balance_non_negative"}, store.ErrInsufficientBalance},
		{"wrapped unique", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), store.ErrDuplicate},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := postgres.MapError(tc.err)
			assert.ErrorIs(t, got, tc.want)
		})
	}
}

func TestMapError_PassThrough(t *testing.T) {
	t.Parallel()

	assert.NoError(t, postgres.MapError(nil))

	plain := errors.New("connection reset")
	assert.Same(t, plain, postgres.MapError(plain))

	other := &pgconn.PgError{Code: "42P01"}
	assert.Equal(t, error(other), postgres.MapError(other))
}

func TestMapError_KeepsDriverError(t *testing.T) {
	t.Parallel()

	mapped := postgres.MapError(&pgconn.PgError{Code: "23505", ConstraintName: "credit_transactions_owner_idempotency_key"})

	var pgErr *pgconn.PgError
	assert.True(t, errors.As(mapped, &pgErr))
	assert.Equal(t, "credit_transactions_owner_idempotency_key", pgErr.ConstraintName)
	assert.True(t, postgres.IsUniqueViolation(mapped))
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, postgres.IsRetryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, postgres.IsRetryable(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40P01"})))
	assert.False(t, postgres.IsRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, postgres.IsRetryable(errors.New("boom")))
}
