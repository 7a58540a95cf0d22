package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/credits"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/redact"
	"github.com/phrazzld/quill-api/internal/store"
)

// TransactionPage is one page of an owner's ledger, newest first.
type TransactionPage struct {
	Transactions []*domain.CreditTransaction `json:"transactions"`
	Total        int                         `json:"total"`
	Limit        int                         `json:"limit"`
	Offset       int                         `json:"offset"`
}

// AccountService manages owner records and their credit accounts.
type AccountService interface {
	// EnsureOwner creates the owner on first sight and grants the signup
	// credits. Later calls are cheap no-ops.
	EnsureOwner(ctx context.Context, ownerID uuid.UUID, email string) error

	// Balance returns the owner's current credit balance.
	Balance(ctx context.Context, ownerID uuid.UUID) (int, error)

	// History returns a page of the owner's ledger rows.
	History(ctx context.Context, ownerID uuid.UUID, page Page) (*TransactionPage, error)

	// Grant adds credits to the owner, creating the owner if needed, and
	// returns the new balance.
	Grant(ctx context.Context, ownerID uuid.UUID, amount int, reason string) (int, error)

	// Audit compares the owner's balance with the sum of the ledger rows.
	Audit(ctx context.Context, ownerID uuid.UUID) (credits.AuditReport, error)
}

type accountServiceImpl struct {
	users       store.UserStore
	ledger      credits.Ledger
	signupGrant int
	logger      *slog.Logger

	// known caches owners this process has already ensured.
	known sync.Map
}

// NewAccountService creates a new AccountService.
// It returns an error if any of the required dependencies are nil.
func NewAccountService(
	users store.UserStore,
	ledger credits.Ledger,
	signupGrant int,
	logger *slog.Logger,
) (AccountService, error) {
	if users == nil {
		return nil, &RewriteServiceError{Operation: "create_account_service", Message: "users cannot be nil"}
	}
	if ledger == nil {
		return nil, &RewriteServiceError{Operation: "create_account_service", Message: "ledger cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &accountServiceImpl{
		users:       users,
		ledger:      ledger,
		signupGrant: signupGrant,
		logger:      logger.With("component", "account_service"),
	}, nil
}

// EnsureOwner implements AccountService.EnsureOwner
func (s *accountServiceImpl) EnsureOwner(ctx context.Context, ownerID uuid.UUID, email string) error {
	if _, ok := s.known.Load(ownerID); ok {
		return nil
	}

	created, err := s.users.EnsureUser(ctx, ownerID, email)
	if err != nil {
		return NewRewriteServiceError("ensure_owner", "failed to ensure owner", err)
	}
	if created && s.signupGrant > 0 {
		if _, err := s.ledger.Reward(ctx, ownerID, s.signupGrant, "signup grant"); err != nil {
			logger.FromContextOrDefault(ctx, s.logger).Error("failed to grant signup credits",
				"error", redact.Error(err),
				"owner_id", ownerID)
			return NewRewriteServiceError("ensure_owner", "failed to grant signup credits", err)
		}
	}
	if created {
		logger.FromContextOrDefault(ctx, s.logger).Info("owner created",
			"owner_id", ownerID,
			"signup_grant", s.signupGrant)
	}

	s.known.Store(ownerID, struct{}{})
	return nil
}

// Balance implements AccountService.Balance
func (s *accountServiceImpl) Balance(ctx context.Context, ownerID uuid.UUID) (int, error) {
	balance, err := s.ledger.Balance(ctx, ownerID)
	if err != nil {
		return 0, NewRewriteServiceError("balance", "failed to read balance", err)
	}
	return balance, nil
}

// History implements AccountService.History
func (s *accountServiceImpl) History(ctx context.Context, ownerID uuid.UUID, page Page) (*TransactionPage, error) {
	page = page.Normalize()
	txns, total, err := s.ledger.History(ctx, ownerID, page.Limit, page.Offset)
	if err != nil {
		return nil, NewRewriteServiceError("history", "failed to list transactions", err)
	}
	if txns == nil {
		txns = []*domain.CreditTransaction{}
	}
	return &TransactionPage{Transactions: txns, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

// Grant implements AccountService.Grant
func (s *accountServiceImpl) Grant(ctx context.Context, ownerID uuid.UUID, amount int, reason string) (int, error) {
	if amount <= 0 {
		return 0, domain.NewValidationError("amount", "must be positive")
	}
	if reason == "" {
		reason = "manual grant"
	}
	if _, err := s.users.EnsureUser(ctx, ownerID, ""); err != nil {
		return 0, NewRewriteServiceError("grant", "failed to ensure owner", err)
	}

	res, err := s.ledger.Reward(ctx, ownerID, amount, reason)
	if err != nil {
		return 0, NewRewriteServiceError("grant", "failed to grant credits", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("credits granted",
		"owner_id", ownerID,
		"amount", amount,
		"balance", res.Remaining)
	return res.Remaining, nil
}

// Audit implements AccountService.Audit
func (s *accountServiceImpl) Audit(ctx context.Context, ownerID uuid.UUID) (credits.AuditReport, error) {
	report, err := s.ledger.Audit(ctx, ownerID)
	if err != nil {
		return credits.AuditReport{}, NewRewriteServiceError("audit", "failed to audit ledger", err)
	}
	return report, nil
}
