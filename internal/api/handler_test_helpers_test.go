package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/api/shared"
	"github.com/phrazzld/quill-api/internal/credits"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/service"
	"github.com/stretchr/testify/require"
)

// MockRewriteService is a mock implementation of service.RewriteService for testing
type MockRewriteService struct {
	CreateFn      func(ctx context.Context, ownerID uuid.UUID, input service.CreateTaskInput) (*domain.Task, error)
	ProcessItemFn func(ctx context.Context, itemID uuid.UUID) error
	ReprocessFn   func(ctx context.Context, ownerID uuid.UUID, target service.ReprocessTarget) (int, error)
	StatusFn      func(ctx context.Context, taskID, ownerID uuid.UUID) (*service.TaskStatusView, error)
	ListFn        func(ctx context.Context, ownerID uuid.UUID, page service.Page) (*service.TaskPage, error)
}

var _ service.RewriteService = (*MockRewriteService)(nil)

// Create implements service.RewriteService
func (m *MockRewriteService) Create(
	ctx context.Context,
	ownerID uuid.UUID,
	input service.CreateTaskInput,
) (*domain.Task, error) {
	return m.CreateFn(ctx, ownerID, input)
}

// ProcessItem implements service.RewriteService
func (m *MockRewriteService) ProcessItem(ctx context.Context, itemID uuid.UUID) error {
	if m.ProcessItemFn != nil {
		return m.ProcessItemFn(ctx, itemID)
	}
	return nil
}

// Reprocess implements service.RewriteService
func (m *MockRewriteService) Reprocess(
	ctx context.Context,
	ownerID uuid.UUID,
	target service.ReprocessTarget,
) (int, error) {
	return m.ReprocessFn(ctx, ownerID, target)
}

// Status implements service.RewriteService
func (m *MockRewriteService) Status(ctx context.Context, taskID, ownerID uuid.UUID) (*service.TaskStatusView, error) {
	return m.StatusFn(ctx, taskID, ownerID)
}

// List implements service.RewriteService
func (m *MockRewriteService) List(ctx context.Context, ownerID uuid.UUID, page service.Page) (*service.TaskPage, error) {
	return m.ListFn(ctx, ownerID, page)
}

// MockAccountService is a mock implementation of service.AccountService for testing
type MockAccountService struct {
	BalanceFn func(ctx context.Context, ownerID uuid.UUID) (int, error)
	HistoryFn func(ctx context.Context, ownerID uuid.UUID, page service.Page) (*service.TransactionPage, error)
}

var _ service.AccountService = (*MockAccountService)(nil)

// EnsureOwner implements service.AccountService
func (m *MockAccountService) EnsureOwner(ctx context.Context, ownerID uuid.UUID, email string) error {
	return nil
}

// Balance implements service.AccountService
func (m *MockAccountService) Balance(ctx context.Context, ownerID uuid.UUID) (int, error) {
	return m.BalanceFn(ctx, ownerID)
}

// History implements service.AccountService
func (m *MockAccountService) History(
	ctx context.Context,
	ownerID uuid.UUID,
	page service.Page,
) (*service.TransactionPage, error) {
	return m.HistoryFn(ctx, ownerID, page)
}

// Grant implements service.AccountService
func (m *MockAccountService) Grant(ctx context.Context, ownerID uuid.UUID, amount int, reason string) (int, error) {
	return 0, nil
}

// Audit implements service.AccountService
func (m *MockAccountService) Audit(ctx context.Context, ownerID uuid.UUID) (credits.AuditReport, error) {
	return credits.AuditReport{OwnerID: ownerID, Consistent: true}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRouter mounts the handlers the way the server does, with the
// owner injected in place of the auth middleware.
func newTestRouter(owner uuid.UUID, tasks service.RewriteService, accounts service.AccountService) http.Handler {
	taskHandler := NewTaskHandler(tasks, testLogger())
	creditHandler := NewCreditHandler(accounts, testLogger())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if owner != uuid.Nil {
				r = r.WithContext(context.WithValue(r.Context(), shared.UserIDContextKey, owner))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Post("/api/tasks", taskHandler.CreateTask)
	r.Get("/api/tasks", taskHandler.ListTasks)
	r.Get("/api/tasks/{id}", taskHandler.GetTask)
	r.Post("/api/tasks/{id}/reprocess", taskHandler.ReprocessTask)
	r.Post("/api/items/{id}/reprocess", taskHandler.ReprocessItem)
	r.Get("/api/credits", creditHandler.GetBalance)
	r.Get("/api/credits/transactions", creditHandler.ListTransactions)
	return r
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
