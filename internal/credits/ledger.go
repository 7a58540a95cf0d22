package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/store"
)

// Ref correlates a ledger row with the work it paid for. A non-empty
// IdempotencyKey makes the write happen at most once per owner.
type Ref struct {
	TaskID         *uuid.UUID
	ItemID         *uuid.UUID
	IdempotencyKey string
}

// Result is returned by every balance-changing ledger call.
type Result struct {
	Remaining int
	// Replayed is true when the IdempotencyKey was already recorded and
	// nothing new was written.
	Replayed bool
}

// AuditReport compares the stored balance against the ledger rows.
type AuditReport struct {
	OwnerID    uuid.UUID `json:"owner_id"`
	Balance    int       `json:"balance"`
	LedgerSum  int       `json:"ledger_sum"`
	Consistent bool      `json:"consistent"`
}

// Ledger is the per-owner credit account.
type Ledger interface {
	// Consume debits amount. It fails with *InsufficientCreditsError when
	// the balance is lower than amount, in which case nothing is written.
	Consume(ctx context.Context, owner uuid.UUID, amount int, reason string, ref Ref) (Result, error)

	// Refund credits amount back. It always succeeds for a known owner.
	Refund(ctx context.Context, owner uuid.UUID, amount int, reason string, ref Ref) (Result, error)

	// Reward grants amount outside any task, e.g. a purchase or promotion.
	Reward(ctx context.Context, owner uuid.UUID, amount int, reason string) (Result, error)

	// Balance returns the owner's current balance.
	Balance(ctx context.Context, owner uuid.UUID) (int, error)

	// Audit sums the owner's ledger rows and compares them to the balance.
	Audit(ctx context.Context, owner uuid.UUID) (AuditReport, error)

	// History returns the owner's transactions, newest first, and the total count.
	History(ctx context.Context, owner uuid.UUID, limit, offset int) ([]*domain.CreditTransaction, int, error)
}

type ledger struct {
	store  store.CreditStore
	logger *slog.Logger
}

// NewLedger creates a Ledger backed by the given credit store.
func NewLedger(creditStore store.CreditStore, logger *slog.Logger) (Ledger, error) {
	if creditStore == nil {
		return nil, &LedgerError{Operation: "create_ledger", Message: "credit store cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ledger{
		store:  creditStore,
		logger: logger.With(slog.String("component", "credit_ledger")),
	}, nil
}

func (l *ledger) Consume(ctx context.Context, owner uuid.UUID, amount int, reason string, ref Ref) (Result, error) {
	if amount <= 0 {
		return Result{}, ErrInvalidAmount
	}

	res, err := l.store.Apply(ctx, store.CreditApplication{
		OwnerID:        owner,
		Kind:           domain.CreditKindConsume,
		Amount:         -amount,
		Reason:         reason,
		RelatedTaskID:  ref.TaskID,
		RelatedItemID:  ref.ItemID,
		IdempotencyKey: ref.IdempotencyKey,
	})
	if errors.Is(err, store.ErrInsufficientBalance) {
		l.logger.InfoContext(ctx, "consume rejected",
			slog.String("owner_id", owner.String()),
			slog.Int("balance", res.Balance),
			slog.Int("required", amount))
		return Result{Remaining: res.Balance}, &InsufficientCreditsError{Current: res.Balance, Required: amount}
	}
	if err != nil {
		return Result{}, l.wrap("consume", err)
	}

	l.logger.DebugContext(ctx, "credits consumed",
		slog.String("owner_id", owner.String()),
		slog.Int("amount", amount),
		slog.Int("remaining", res.Balance),
		slog.String("reason", reason))
	return Result{Remaining: res.Balance, Replayed: res.Replayed}, nil
}

func (l *ledger) Refund(ctx context.Context, owner uuid.UUID, amount int, reason string, ref Ref) (Result, error) {
	return l.credit(ctx, "refund", domain.CreditKindRefund, owner, amount, reason, ref)
}

func (l *ledger) Reward(ctx context.Context, owner uuid.UUID, amount int, reason string) (Result, error) {
	return l.credit(ctx, "reward", domain.CreditKindReward, owner, amount, reason, Ref{})
}

func (l *ledger) credit(
	ctx context.Context,
	op string,
	kind domain.CreditKind,
	owner uuid.UUID,
	amount int,
	reason string,
	ref Ref,
) (Result, error) {
	if amount <= 0 {
		return Result{}, ErrInvalidAmount
	}

	res, err := l.store.Apply(ctx, store.CreditApplication{
		OwnerID:        owner,
		Kind:           kind,
		Amount:         amount,
		Reason:         reason,
		RelatedTaskID:  ref.TaskID,
		RelatedItemID:  ref.ItemID,
		IdempotencyKey: ref.IdempotencyKey,
	})
	if err != nil {
		return Result{}, l.wrap(op, err)
	}

	if res.Replayed {
		l.logger.InfoContext(ctx, "duplicate credit ignored",
			slog.String("owner_id", owner.String()),
			slog.String("kind", string(kind)),
			slog.String("idempotency_key", ref.IdempotencyKey))
	} else {
		l.logger.DebugContext(ctx, "credits added",
			slog.String("owner_id", owner.String()),
			slog.String("kind", string(kind)),
			slog.Int("amount", amount),
			slog.Int("remaining", res.Balance))
	}
	return Result{Remaining: res.Balance, Replayed: res.Replayed}, nil
}

func (l *ledger) Balance(ctx context.Context, owner uuid.UUID) (int, error) {
	balance, err := l.store.GetBalance(ctx, owner)
	if err != nil {
		return 0, l.wrap("balance", err)
	}
	return balance, nil
}

func (l *ledger) Audit(ctx context.Context, owner uuid.UUID) (AuditReport, error) {
	balance, err := l.store.GetBalance(ctx, owner)
	if err != nil {
		return AuditReport{}, l.wrap("audit", err)
	}
	sum, err := l.store.SumTransactions(ctx, owner)
	if err != nil {
		return AuditReport{}, l.wrap("audit", err)
	}

	report := AuditReport{
		OwnerID:    owner,
		Balance:    balance,
		LedgerSum:  sum,
		Consistent: balance == sum,
	}
	if !report.Consistent {
		l.logger.WarnContext(ctx, "credit balance drift detected",
			slog.String("owner_id", owner.String()),
			slog.Int("balance", balance),
			slog.Int("ledger_sum", sum))
	}
	return report, nil
}

func (l *ledger) History(
	ctx context.Context,
	owner uuid.UUID,
	limit, offset int,
) ([]*domain.CreditTransaction, int, error) {
	txns, total, err := l.store.ListTransactions(ctx, owner, limit, offset)
	if err != nil {
		return nil, 0, l.wrap("history", err)
	}
	return txns, total, nil
}

// wrap passes not-found through unchanged and wraps everything else.
func (l *ledger) wrap(op string, err error) error {
	if errors.Is(err, store.ErrUserNotFound) {
		return store.ErrUserNotFound
	}
	return newLedgerError(op, fmt.Sprintf("%s failed", op), err)
}
