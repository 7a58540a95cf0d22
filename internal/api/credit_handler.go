package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/quill-api/internal/api/shared"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/service"
)

// CreditHandler exposes the caller's credit account.
type CreditHandler struct {
	accountService service.AccountService
	logger         *slog.Logger
}

// NewCreditHandler creates a new CreditHandler
func NewCreditHandler(accountService service.AccountService, logger *slog.Logger) *CreditHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for CreditHandler")
	}

	return &CreditHandler{
		accountService: accountService,
		logger:         logger.With(slog.String("component", "credit_handler")),
	}
}

// GetBalance handles GET /api/credits requests.
func (h *CreditHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	balance, err := h.accountService.Balance(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get balance")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, BalanceResponse{Balance: balance})
}

// ListTransactions handles GET /api/credits/transactions requests.
func (h *CreditHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	page, err := parsePage(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	history, err := h.accountService.History(r.Context(), userID, page)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list transactions")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, history)
}
