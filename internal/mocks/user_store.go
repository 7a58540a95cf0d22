package mocks

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/store"
)

// MemoryUserStore implements store.UserStore on top of a MemoryCreditStore,
// so owners it creates can immediately hold credits.
type MemoryUserStore struct {
	credits *MemoryCreditStore

	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

// NewMemoryUserStore creates a user store whose owners live in credits.
func NewMemoryUserStore(credits *MemoryCreditStore) *MemoryUserStore {
	return &MemoryUserStore{credits: credits, users: make(map[uuid.UUID]*domain.User)}
}

var _ store.UserStore = (*MemoryUserStore)(nil)

// EnsureUser implements store.UserStore.EnsureUser
func (m *MemoryUserStore) EnsureUser(ctx context.Context, id uuid.UUID, email string) (bool, error) {
	user, err := domain.NewUser(id, email)
	if err != nil {
		return false, store.NewStoreError("user", "ensure", "invalid user", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; ok {
		return false, nil
	}
	if m.credits.account(id) != nil {
		m.users[id] = user
		return false, nil
	}
	m.users[id] = user
	m.credits.AddOwner(id, 0)
	return true, nil
}

// GetByID implements store.UserStore.GetByID
func (m *MemoryUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	user, ok := m.users[id]
	m.mu.Unlock()
	if !ok {
		if m.credits.account(id) == nil {
			return nil, store.ErrUserNotFound
		}
		user = &domain.User{ID: id, CreatedAt: time.Now().UTC()}
	}

	copied := *user
	balance, err := m.credits.GetBalance(ctx, id)
	if err != nil {
		return nil, err
	}
	copied.CreditBalance = balance
	return &copied, nil
}

// WithTx implements store.UserStore.WithTx
func (m *MemoryUserStore) WithTx(tx *sql.Tx) store.UserStore {
	return m
}
