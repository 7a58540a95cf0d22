package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/store"
)

// PostgresUserStore implements the store.UserStore interface
// using a PostgreSQL database as the storage backend.
type PostgresUserStore struct {
	db store.DBTX
}

// NewPostgresUserStore creates a new PostgreSQL implementation of the UserStore interface.
func NewPostgresUserStore(db store.DBTX) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

// Ensure PostgresUserStore implements store.UserStore interface
var _ store.UserStore = (*PostgresUserStore)(nil)

// WithTx implements store.UserStore.WithTx
func (s *PostgresUserStore) WithTx(tx *sql.Tx) store.UserStore {
	return &PostgresUserStore{db: tx}
}

// EnsureUser implements store.UserStore.EnsureUser
func (s *PostgresUserStore) EnsureUser(ctx context.Context, id uuid.UUID, email string) (bool, error) {
	user, err := domain.NewUser(id, email)
	if err != nil {
		return false, store.NewStoreError("user", "ensure", "invalid user", errors.Join(store.ErrInvalidEntity, err))
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, credit_balance, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $3)
		ON CONFLICT (id) DO NOTHING`,
		user.ID, user.Email, user.CreatedAt,
	)
	if err != nil {
		return false, store.NewStoreError("user", "ensure", "failed to insert user", MapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, store.NewStoreError("user", "ensure", "failed to read affected rows", err)
	}
	return n == 1, nil
}

// GetByID implements store.UserStore.GetByID
func (s *PostgresUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var (
		user      domain.User
		createdAt time.Time
		updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, credit_balance, created_at, updated_at
		FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.Email, &user.CreditBalance, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, store.NewStoreError("user", "get", "failed to load user", MapError(err))
	}
	user.CreatedAt = createdAt
	user.UpdatedAt = updatedAt
	return &user, nil
}
