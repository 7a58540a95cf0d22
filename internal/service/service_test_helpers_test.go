package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/credits"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/events"
	"github.com/phrazzld/quill-api/internal/generation"
	"github.com/phrazzld/quill-api/internal/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEventEmitter is a mock implementation of events.EventEmitter
type MockEventEmitter struct {
	mock.Mock
}

// EmitEvent implements events.EventEmitter
func (m *MockEventEmitter) EmitEvent(ctx context.Context, event *events.DispatchEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// Dispatched returns the events emitted so far, in order.
func (m *MockEventEmitter) Dispatched() []*events.DispatchEvent {
	var out []*events.DispatchEvent
	for _, call := range m.Calls {
		if call.Method == "EmitEvent" {
			out = append(out, call.Arguments.Get(1).(*events.DispatchEvent))
		}
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// twoVersions is a well-formed model answer for version_count 2.
const twoVersions = "## Version 1: Bright\nFirst body.\n\n## Version 2: Calm\nSecond body.\n"

// scriptedClient answers with twoVersions unless the prompt contains one
// of the markers below.
const (
	markerHang  = "HANG-UNTIL-TIMEOUT"
	markerError = "UPSTREAM-ERROR"
	markerShort = "ONE-VERSION-ONLY"
)

func scriptedClient() generation.Client {
	return generation.ClientFunc(func(ctx context.Context, req generation.Request, cb generation.Callbacks) error {
		switch {
		case strings.Contains(req.Prompt, markerHang):
			<-ctx.Done()
			cb.OnError(ctx.Err())
			return ctx.Err()
		case strings.Contains(req.Prompt, markerError):
			err := generation.ErrGenerationFailed
			cb.OnError(err)
			return err
		case strings.Contains(req.Prompt, markerShort):
			text := "## Version 1: Only\nJust one.\n"
			cb.OnChunk(text)
			cb.OnComplete(text)
			return nil
		}
		// Split the answer into chunks to exercise accumulation.
		half := len(twoVersions) / 2
		cb.OnChunk(twoVersions[:half])
		cb.OnChunk(twoVersions[half:])
		cb.OnComplete(twoVersions)
		return nil
	})
}

type fixture struct {
	tasks   *mocks.MemoryTaskStore
	credits *mocks.MemoryCreditStore
	ledger  credits.Ledger
	emitter *MockEventEmitter
	svc     *rewriteServiceImpl
	owner   uuid.UUID
}

func newFixture(t *testing.T, balance int) *fixture {
	t.Helper()

	f := &fixture{
		tasks:   mocks.NewMemoryTaskStore(),
		credits: mocks.NewMemoryCreditStore(),
		emitter: &MockEventEmitter{},
		owner:   uuid.New(),
	}
	f.credits.AddOwner(f.owner, balance)
	f.emitter.On("EmitEvent", mock.Anything, mock.Anything).Return(nil)

	ledger, err := credits.NewLedger(f.credits, discardLogger())
	require.NoError(t, err)
	f.ledger = ledger

	prompts, err := generation.NewPromptBuilder("")
	require.NoError(t, err)

	svc, err := NewRewriteService(f.tasks, ledger, scriptedClient(), prompts, f.emitter, RewriteConfig{
		UnitCost:    1,
		MaxVersions: 5,
		MaxItems:    10,
		Timeouts:    generation.Timeouts{Total: 2 * time.Second, Idle: 50 * time.Millisecond},
	}, discardLogger())
	require.NoError(t, err)
	f.svc = svc.(*rewriteServiceImpl)
	return f
}

func testConfig(versions int) domain.GenerationConfig {
	return domain.GenerationConfig{
		ContentType:  domain.ContentTypeProductDescription,
		Theme:        "spring launch",
		VersionCount: versions,
	}
}

func sources(bodies ...string) []SourceInput {
	out := make([]SourceInput, 0, len(bodies))
	for i, body := range bodies {
		out = append(out, SourceInput{
			SourceRef: "sku-" + string(rune('a'+i)),
			Snapshot:  domain.SourceSnapshot{Title: "Product", Body: body},
		})
	}
	return out
}

func (f *fixture) create(t *testing.T, versions int, bodies ...string) *domain.Task {
	t.Helper()
	task, err := f.svc.Create(context.Background(), f.owner, CreateTaskInput{
		DisplayName: "batch",
		Config:      testConfig(versions),
		Items:       sources(bodies...),
	})
	require.NoError(t, err)
	return task
}

func (f *fixture) items(t *testing.T, taskID uuid.UUID) []*domain.Item {
	t.Helper()
	items, err := f.tasks.ListItemsByTask(context.Background(), taskID)
	require.NoError(t, err)
	return items
}

func (f *fixture) balance(t *testing.T) int {
	t.Helper()
	balance, err := f.ledger.Balance(context.Background(), f.owner)
	require.NoError(t, err)
	return balance
}

func (f *fixture) refunds() []*domain.CreditTransaction {
	var out []*domain.CreditTransaction
	for _, txn := range f.credits.Transactions(f.owner) {
		if txn.Kind == domain.CreditKindRefund {
			out = append(out, txn)
		}
	}
	return out
}
