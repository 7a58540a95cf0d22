package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/store"
)

// MemoryCreditStore implements store.CreditStore in memory. Each owner has
// its own mutex, mirroring the per-owner row lock of the PostgreSQL store.
type MemoryCreditStore struct {
	// ApplyFn, when set, runs before the default behaviour and may
	// short-circuit it by returning a non-nil error.
	ApplyFn func(ctx context.Context, app store.CreditApplication) error

	mu       sync.Mutex
	accounts map[uuid.UUID]*memoryAccount
}

type memoryAccount struct {
	mu      sync.Mutex
	balance int
	txns    []*domain.CreditTransaction
	keys    map[string]*domain.CreditTransaction
}

// NewMemoryCreditStore creates an empty in-memory credit store.
func NewMemoryCreditStore() *MemoryCreditStore {
	return &MemoryCreditStore{accounts: make(map[uuid.UUID]*memoryAccount)}
}

var _ store.CreditStore = (*MemoryCreditStore)(nil)

// AddOwner registers an owner with a starting balance recorded as a reward.
func (m *MemoryCreditStore) AddOwner(owner uuid.UUID, balance int) {
	m.mu.Lock()
	acct, ok := m.accounts[owner]
	if !ok {
		acct = &memoryAccount{keys: make(map[string]*domain.CreditTransaction)}
		m.accounts[owner] = acct
	}
	m.mu.Unlock()

	if balance > 0 {
		acct.mu.Lock()
		acct.append(store.CreditApplication{
			OwnerID: owner, Kind: domain.CreditKindReward, Amount: balance, Reason: "initial balance",
		})
		acct.mu.Unlock()
	}
}

// SetBalanceUnsafe overwrites the balance without a ledger row. Used to
// simulate drift in audit tests.
func (m *MemoryCreditStore) SetBalanceUnsafe(owner uuid.UUID, balance int) {
	if acct := m.account(owner); acct != nil {
		acct.mu.Lock()
		acct.balance = balance
		acct.mu.Unlock()
	}
}

// Transactions returns a copy of the owner's ledger rows, oldest first.
func (m *MemoryCreditStore) Transactions(owner uuid.UUID) []*domain.CreditTransaction {
	acct := m.account(owner)
	if acct == nil {
		return nil
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	out := make([]*domain.CreditTransaction, len(acct.txns))
	copy(out, acct.txns)
	return out
}

func (m *MemoryCreditStore) account(owner uuid.UUID) *memoryAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[owner]
}

func (a *memoryAccount) append(app store.CreditApplication) *domain.CreditTransaction {
	a.balance += app.Amount
	txn := &domain.CreditTransaction{
		ID:             uuid.New(),
		OwnerID:        app.OwnerID,
		Kind:           app.Kind,
		Amount:         app.Amount,
		BalanceAfter:   a.balance,
		Reason:         app.Reason,
		RelatedTaskID:  app.RelatedTaskID,
		RelatedItemID:  app.RelatedItemID,
		IdempotencyKey: app.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
	a.txns = append(a.txns, txn)
	if app.IdempotencyKey != "" {
		a.keys[app.IdempotencyKey] = txn
	}
	return txn
}

// Apply implements store.CreditStore.Apply
func (m *MemoryCreditStore) Apply(ctx context.Context, app store.CreditApplication) (store.CreditApplyResult, error) {
	if m.ApplyFn != nil {
		if err := m.ApplyFn(ctx, app); err != nil {
			return store.CreditApplyResult{}, err
		}
	}

	acct := m.account(app.OwnerID)
	if acct == nil {
		return store.CreditApplyResult{}, store.ErrUserNotFound
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()

	if app.IdempotencyKey != "" {
		if existing, ok := acct.keys[app.IdempotencyKey]; ok {
			return store.CreditApplyResult{Transaction: existing, Balance: acct.balance, Replayed: true}, nil
		}
	}
	if acct.balance+app.Amount < 0 {
		return store.CreditApplyResult{Balance: acct.balance}, store.ErrInsufficientBalance
	}

	txn := acct.append(app)
	return store.CreditApplyResult{Transaction: txn, Balance: acct.balance}, nil
}

// GetBalance implements store.CreditStore.GetBalance
func (m *MemoryCreditStore) GetBalance(ctx context.Context, owner uuid.UUID) (int, error) {
	acct := m.account(owner)
	if acct == nil {
		return 0, store.ErrUserNotFound
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.balance, nil
}

// SumTransactions implements store.CreditStore.SumTransactions
func (m *MemoryCreditStore) SumTransactions(ctx context.Context, owner uuid.UUID) (int, error) {
	sum := 0
	for _, txn := range m.Transactions(owner) {
		sum += txn.Amount
	}
	return sum, nil
}

// ListTransactions implements store.CreditStore.ListTransactions
func (m *MemoryCreditStore) ListTransactions(
	ctx context.Context,
	owner uuid.UUID,
	limit, offset int,
) ([]*domain.CreditTransaction, int, error) {
	txns := m.Transactions(owner)
	total := len(txns)
	newestFirst := make([]*domain.CreditTransaction, 0, total)
	for i := total - 1; i >= 0; i-- {
		newestFirst = append(newestFirst, txns[i])
	}
	return page(newestFirst, limit, offset), total, nil
}

// ListOwnerIDs implements store.CreditStore.ListOwnerIDs
func (m *MemoryCreditStore) ListOwnerIDs(ctx context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(m.accounts))
	for id := range m.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// WithTx implements store.CreditStore.WithTx. The memory store has no
// transactions, so it returns itself.
func (m *MemoryCreditStore) WithTx(tx *sql.Tx) store.CreditStore {
	return m
}

func page[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return []T{}
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end]
}
