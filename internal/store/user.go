package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
)

// UserStore defines the interface for owner record persistence. Owners
// are created lazily; authentication happens upstream via bearer tokens.
type UserStore interface {
	// EnsureUser creates the owner row with a zero balance if it does not
	// exist yet and reports whether it did. Existing rows are left untouched.
	EnsureUser(ctx context.Context, id uuid.UUID, email string) (bool, error)

	// GetByID retrieves an owner by ID.
	// Returns ErrUserNotFound if the owner does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// WithTx returns a new UserStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) UserStore
}
