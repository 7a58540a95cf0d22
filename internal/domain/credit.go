package domain

import (
	"time"

	"github.com/google/uuid"
)

// CreditKind classifies a balance-affecting ledger event
type CreditKind string

// Possible credit transaction kinds
const (
	CreditKindConsume CreditKind = "consume"
	CreditKindRefund  CreditKind = "refund"
	CreditKindReward  CreditKind = "reward"
)

// IsValid reports whether the kind is known.
func (k CreditKind) IsValid() bool {
	switch k {
	case CreditKindConsume, CreditKindRefund, CreditKindReward:
		return true
	default:
		return false
	}
}

// CreditTransaction is one append-only ledger row. Amount is signed:
// consumes are negative, refunds and rewards positive. BalanceAfter is the
// owner's balance once this row was applied.
type CreditTransaction struct {
	ID             uuid.UUID  `json:"id"`
	OwnerID        uuid.UUID  `json:"owner_id"`
	Kind           CreditKind `json:"kind"`
	Amount         int        `json:"amount"`
	BalanceAfter   int        `json:"balance_after"`
	Reason         string     `json:"reason"`
	RelatedTaskID  *uuid.UUID `json:"related_task_id,omitempty"`
	RelatedItemID  *uuid.UUID `json:"related_item_id,omitempty"`
	IdempotencyKey string     `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
}
