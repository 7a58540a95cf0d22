package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/credits"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/events"
	"github.com/phrazzld/quill-api/internal/generation"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/redact"
	"github.com/phrazzld/quill-api/internal/store"
	"github.com/phrazzld/quill-api/internal/versions"
)

// Item failure messages written to item and version rows.
const (
	ErrMsgGenerationTimeout = "generation timed out"
	ErrMsgContentBlocked    = "content blocked by safety filters"
	ErrMsgEmptyOutput       = "generation returned no usable output"
	ErrMsgGenerationFailed  = "generation failed"
)

// RewriteConfig holds the tunables of the rewrite service.
type RewriteConfig struct {
	// UnitCost is the number of credits charged per item.
	UnitCost int
	// MaxVersions caps GenerationConfig.VersionCount.
	MaxVersions int
	// MaxItems caps the number of items in one task. Zero means no limit.
	MaxItems int
	// Timeouts bound each generation call.
	Timeouts generation.Timeouts
}

// SourceInput is one source submitted for rewriting.
type SourceInput struct {
	SourceRef string
	Snapshot  domain.SourceSnapshot
}

// CreateTaskInput is the payload of RewriteService.Create.
type CreateTaskInput struct {
	DisplayName      string
	CorrelationLabel string
	Config           domain.GenerationConfig
	Items            []SourceInput
}

// ReprocessTarget names either a whole task or a single item. Exactly one
// of the IDs must be set.
type ReprocessTarget struct {
	TaskID uuid.UUID
	ItemID uuid.UUID
}

// RewriteService orchestrates rewrite tasks: it charges credits, persists
// the task with its items, dispatches items and processes them.
type RewriteService interface {
	// Create validates the input, charges len(items) × unit cost and
	// persists the task with its items and placeholder versions. Items are
	// dispatched for background processing before it returns.
	Create(ctx context.Context, ownerID uuid.UUID, input CreateTaskInput) (*domain.Task, error)

	// ProcessItem generates the versions of one item. It is safe to call
	// more than once for the same item.
	ProcessItem(ctx context.Context, itemID uuid.UUID) error

	// Reprocess charges and resets failed items of the target, then
	// dispatches them again. It returns the number of items accepted.
	Reprocess(ctx context.Context, ownerID uuid.UUID, target ReprocessTarget) (int, error)

	// Status returns the task with live progress and every item's versions.
	Status(ctx context.Context, taskID, ownerID uuid.UUID) (*TaskStatusView, error)

	// List returns a page of the owner's tasks with cached progress counts.
	List(ctx context.Context, ownerID uuid.UUID, page Page) (*TaskPage, error)
}

type rewriteServiceImpl struct {
	tasks   store.TaskStore
	ledger  credits.Ledger
	client  generation.Client
	prompts *generation.PromptBuilder
	emitter events.EventEmitter
	config  RewriteConfig
	logger  *slog.Logger
}

// NewRewriteService creates a new RewriteService.
// It returns an error if any of the required dependencies are nil.
func NewRewriteService(
	tasks store.TaskStore,
	ledger credits.Ledger,
	client generation.Client,
	prompts *generation.PromptBuilder,
	emitter events.EventEmitter,
	config RewriteConfig,
	logger *slog.Logger,
) (RewriteService, error) {
	deps := []struct {
		name    string
		missing bool
	}{
		{"tasks", tasks == nil},
		{"ledger", ledger == nil},
		{"client", client == nil},
		{"prompts", prompts == nil},
		{"emitter", emitter == nil},
	}
	for _, dep := range deps {
		if dep.missing {
			return nil, &RewriteServiceError{
				Operation: "create_service",
				Message:   dep.name + " cannot be nil",
			}
		}
	}
	if config.UnitCost <= 0 {
		return nil, &RewriteServiceError{
			Operation: "create_service",
			Message:   "unit cost must be positive",
		}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &rewriteServiceImpl{
		tasks:   tasks,
		ledger:  ledger,
		client:  client,
		prompts: prompts,
		emitter: emitter,
		config:  config,
		logger:  logger.With("component", "rewrite_service"),
	}, nil
}

// Create implements RewriteService.Create
func (s *rewriteServiceImpl) Create(
	ctx context.Context,
	ownerID uuid.UUID,
	input CreateTaskInput,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	bundle, err := s.buildBundle(ownerID, input)
	if err != nil {
		return nil, err
	}
	task := bundle.Task
	cost := len(bundle.Items) * s.config.UnitCost

	if _, err := s.ledger.Consume(ctx, ownerID, cost, "task creation", credits.Ref{TaskID: &task.ID}); err != nil {
		if !errors.Is(err, credits.ErrInsufficientCredits) {
			log.Error("failed to charge credits",
				"error", redact.Error(err),
				"owner_id", ownerID,
				"cost", cost)
		}
		return nil, NewRewriteServiceError("create_task", "failed to charge credits", err)
	}

	if err := s.tasks.CreateTaskBundle(ctx, bundle); err != nil {
		log.Error("failed to persist task, refunding charge",
			"error", redact.Error(err),
			"owner_id", ownerID,
			"task_id", task.ID,
			"cost", cost)

		// The refund must land even if the request was cancelled mid-way.
		refundCtx := context.WithoutCancel(ctx)
		_, refundErr := s.ledger.Refund(refundCtx, ownerID, cost, "task creation failed", credits.Ref{
			TaskID:         &task.ID,
			IdempotencyKey: "create:" + task.ID.String(),
		})
		if refundErr != nil {
			log.Error("failed to refund charge for unpersisted task",
				"error", redact.Error(refundErr),
				"owner_id", ownerID,
				"task_id", task.ID,
				"cost", cost)
		}
		return nil, ErrPersistence
	}

	for _, item := range bundle.Items {
		s.dispatch(ctx, task, item.ID, item.Attempt)
	}

	log.Info("task created",
		"task_id", task.ID,
		"owner_id", ownerID,
		"items", len(bundle.Items),
		"cost", cost)
	return task, nil
}

// buildBundle validates the input and builds every row Create persists.
func (s *rewriteServiceImpl) buildBundle(ownerID uuid.UUID, input CreateTaskInput) (store.TaskBundle, error) {
	if len(input.Items) == 0 {
		return store.TaskBundle{}, domain.NewValidationError("items", "at least one item is required")
	}
	if s.config.MaxItems > 0 && len(input.Items) > s.config.MaxItems {
		return store.TaskBundle{}, domain.NewValidationError("items",
			fmt.Sprintf("at most %d items are allowed", s.config.MaxItems))
	}
	if err := input.Config.Validate(s.config.MaxVersions); err != nil {
		return store.TaskBundle{}, err
	}

	task, err := domain.NewTask(ownerID, input.DisplayName, input.Config, input.CorrelationLabel, len(input.Items))
	if err != nil {
		return store.TaskBundle{}, err
	}

	bundle := store.TaskBundle{
		Task:     task,
		Items:    make([]*domain.Item, 0, len(input.Items)),
		Versions: make(map[uuid.UUID][]*domain.Version, len(input.Items)),
	}
	for i, in := range input.Items {
		item, err := domain.NewItem(task.ID, in.SourceRef, in.Snapshot)
		if err != nil {
			var vErr *domain.ValidationError
			if errors.As(err, &vErr) {
				field := fmt.Sprintf("items[%d]%s", i, strings.TrimPrefix(vErr.Field, "item"))
				return store.TaskBundle{}, domain.NewValidationError(field, vErr.Reason)
			}
			return store.TaskBundle{}, err
		}
		bundle.Items = append(bundle.Items, item)
		bundle.Versions[item.ID] = domain.NewPlaceholderVersions(item.ID, input.Config.VersionCount)
	}
	return bundle, nil
}

// dispatch emits a dispatch event for the item. A lost event only delays
// the item: it stays pending and the runner's recovery picks it up.
func (s *rewriteServiceImpl) dispatch(ctx context.Context, task *domain.Task, itemID uuid.UUID, attempt int) {
	event := events.NewDispatchEvent(itemID, task.ID, task.OwnerID, attempt)
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Warn("failed to dispatch item",
			"error", redact.Error(err),
			"task_id", task.ID,
			"item_id", itemID)
	}
}

// ProcessItem implements RewriteService.ProcessItem
func (s *rewriteServiceImpl) ProcessItem(ctx context.Context, itemID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger).With("item_id", itemID)

	item, err := s.tasks.GetItem(ctx, itemID)
	if err != nil {
		return NewRewriteServiceError("process_item", "failed to load item", err)
	}
	task, err := s.tasks.GetTask(ctx, item.TaskID)
	if err != nil {
		return NewRewriteServiceError("process_item", "failed to load task", err)
	}
	log = log.With("task_id", task.ID, "attempt", item.Attempt)

	switch item.Status {
	case domain.ItemStatusCompleted:
		log.Debug("item already completed, skipping")
		return nil
	case domain.ItemStatusFailed:
		// A redelivered failure re-issues its refund. The idempotency key
		// makes this a no-op if the refund already landed.
		log.Debug("item already failed, confirming refund")
		return s.refundFailure(ctx, task, item)
	}

	marked, err := s.tasks.MarkItemProcessing(ctx, itemID)
	if err != nil {
		return NewRewriteServiceError("process_item", "failed to mark item processing", err)
	}
	if !marked {
		log.Debug("item became terminal before processing, skipping")
		return nil
	}

	req, err := s.prompts.Build(task.Config, item.SourceSnapshot)
	if err != nil {
		return s.failItem(ctx, task, item, err)
	}

	text, err := generation.Collect(ctx, s.client, req, s.config.Timeouts)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, generation.ErrTimeout) {
			// Shutdown, not a generation failure. The item stays
			// processing and is recovered on the next start.
			log.Info("item processing interrupted", "error", redact.Error(err))
			return err
		}
		return s.failItem(ctx, task, item, err)
	}

	sections := versions.Match(versions.Parse(text), task.Config.VersionCount)
	contents := make([]domain.VersionContent, 0, len(sections))
	for _, section := range sections {
		contents = append(contents, domain.VersionContent{Title: section.Title, Body: section.Body})
	}

	err = s.tasks.CompleteItem(ctx, itemID, item.Attempt, contents)
	if errors.Is(err, store.ErrStateConflict) {
		log.Info("item finished or reprocessed elsewhere, discarding result")
		return nil
	}
	if err != nil {
		return s.failItem(ctx, task, item, err)
	}

	log.Info("item completed",
		"versions_generated", len(contents),
		"versions_expected", task.Config.VersionCount)
	return nil
}

// failItem marks the item and its unfinished versions failed and refunds
// the item's charge.
func (s *rewriteServiceImpl) failItem(ctx context.Context, task *domain.Task, item *domain.Item, cause error) error {
	log := logger.FromContextOrDefault(ctx, s.logger)
	message := failureMessage(cause)

	log.Warn("item failed",
		"error", redact.Error(cause),
		"item_id", item.ID,
		"task_id", task.ID,
		"reason", message)

	failed, err := s.tasks.FailItem(ctx, item.ID, item.Attempt, message)
	if err != nil {
		return NewRewriteServiceError("process_item", "failed to mark item failed", err)
	}
	if !failed {
		log.Info("item completed or reprocessed before it could be failed",
			"item_id", item.ID,
			"attempt", item.Attempt)
		return nil
	}
	return s.refundFailure(ctx, task, item)
}

// refundFailure returns the item's charge. It is keyed on (item, attempt)
// so repeated calls refund at most once per attempt.
func (s *rewriteServiceImpl) refundFailure(ctx context.Context, task *domain.Task, item *domain.Item) error {
	res, err := s.ledger.Refund(ctx, task.OwnerID, s.config.UnitCost, "item generation failed", credits.Ref{
		TaskID:         &task.ID,
		ItemID:         &item.ID,
		IdempotencyKey: fmt.Sprintf("refund:item:%s:%d", item.ID, item.Attempt),
	})
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to refund failed item",
			"error", redact.Error(err),
			"item_id", item.ID,
			"owner_id", task.OwnerID)
		return NewRewriteServiceError("process_item", "failed to refund item", err)
	}
	if !res.Replayed {
		logger.FromContextOrDefault(ctx, s.logger).Info("refunded failed item",
			"item_id", item.ID,
			"owner_id", task.OwnerID,
			"balance", res.Remaining)
	}
	return nil
}

// failureMessage maps a generation error onto the message stored on the
// item. Raw upstream errors stay in the logs.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, generation.ErrTimeout):
		return ErrMsgGenerationTimeout
	case errors.Is(err, generation.ErrContentBlocked):
		return ErrMsgContentBlocked
	case errors.Is(err, generation.ErrInvalidResponse):
		return ErrMsgEmptyOutput
	default:
		return ErrMsgGenerationFailed
	}
}

// Reprocess implements RewriteService.Reprocess
func (s *rewriteServiceImpl) Reprocess(ctx context.Context, ownerID uuid.UUID, target ReprocessTarget) (int, error) {
	switch {
	case target.TaskID == uuid.Nil && target.ItemID == uuid.Nil:
		return 0, domain.NewValidationError("target", "a task or item ID is required")
	case target.TaskID != uuid.Nil && target.ItemID != uuid.Nil:
		return 0, domain.NewValidationError("target", "only one of task or item ID may be set")
	case target.ItemID != uuid.Nil:
		return s.reprocessOne(ctx, ownerID, target.ItemID)
	default:
		return s.reprocessTask(ctx, ownerID, target.TaskID)
	}
}

func (s *rewriteServiceImpl) reprocessOne(ctx context.Context, ownerID, itemID uuid.UUID) (int, error) {
	item, err := s.tasks.GetItem(ctx, itemID)
	if err != nil {
		return 0, NewRewriteServiceError("reprocess", "failed to load item", err)
	}
	task, err := s.ownedTask(ctx, item.TaskID, ownerID)
	if err != nil {
		return 0, err
	}
	if item.Status != domain.ItemStatusFailed {
		return 0, ErrNotReprocessable
	}

	if err := s.reprocessItem(ctx, task, item); err != nil {
		if errors.Is(err, store.ErrStateConflict) {
			return 0, ErrNotReprocessable
		}
		return 0, NewRewriteServiceError("reprocess", "failed to reprocess item", err)
	}
	return 1, nil
}

func (s *rewriteServiceImpl) reprocessTask(ctx context.Context, ownerID, taskID uuid.UUID) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task, err := s.ownedTask(ctx, taskID, ownerID)
	if err != nil {
		return 0, err
	}
	items, err := s.tasks.ListItemsByTask(ctx, taskID)
	if err != nil {
		return 0, NewRewriteServiceError("reprocess", "failed to list items", err)
	}

	accepted := 0
	for _, item := range items {
		if item.Status != domain.ItemStatusFailed {
			continue
		}
		err := s.reprocessItem(ctx, task, item)
		if errors.Is(err, store.ErrStateConflict) {
			continue
		}
		if err != nil {
			if accepted == 0 {
				return 0, NewRewriteServiceError("reprocess", "failed to reprocess item", err)
			}
			// Items already reset keep their charge and run; the rest
			// stay failed for a later call.
			log.Warn("stopping task reprocess early",
				"error", redact.Error(err),
				"task_id", taskID,
				"accepted", accepted)
			break
		}
		accepted++
	}

	log.Info("task reprocess accepted", "task_id", taskID, "accepted", accepted)
	return accepted, nil
}

// reprocessItem charges one unit for the item's next attempt, resets the
// item and dispatches it. Every call charges under its own key, and the
// charge is refunded when the reset does not happen.
func (s *rewriteServiceImpl) reprocessItem(ctx context.Context, task *domain.Task, item *domain.Item) error {
	key := fmt.Sprintf("reprocess:%s:%d:%s", item.ID, item.Attempt, uuid.NewString())
	_, err := s.ledger.Consume(ctx, task.OwnerID, s.config.UnitCost, "reprocess", credits.Ref{
		TaskID:         &task.ID,
		ItemID:         &item.ID,
		IdempotencyKey: key,
	})
	if err != nil {
		return err
	}

	attempt, err := s.tasks.ResetItemForReprocess(ctx, item.ID)
	if err != nil {
		s.undoReprocessCharge(ctx, task, item, key, err)
		return err
	}

	s.dispatch(ctx, task, item.ID, attempt)
	return nil
}

// undoReprocessCharge refunds a reprocess charge whose reset did not happen.
func (s *rewriteServiceImpl) undoReprocessCharge(
	ctx context.Context,
	task *domain.Task,
	item *domain.Item,
	consumeKey string,
	cause error,
) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	if !errors.Is(cause, store.ErrStateConflict) {
		log.Error("failed to reset item for reprocess, refunding charge",
			"error", redact.Error(cause),
			"task_id", task.ID,
			"item_id", item.ID,
			"attempt", item.Attempt)
	}

	_, err := s.ledger.Refund(context.WithoutCancel(ctx), task.OwnerID, s.config.UnitCost, "reprocess undone", credits.Ref{
		TaskID:         &task.ID,
		ItemID:         &item.ID,
		IdempotencyKey: "reprocess-undo:" + strings.TrimPrefix(consumeKey, "reprocess:"),
	})
	if err != nil {
		log.Error("failed to refund reprocess charge",
			"error", redact.Error(err),
			"task_id", task.ID,
			"item_id", item.ID,
			"owner_id", task.OwnerID)
	}
}

// ownedTask loads the task and checks that ownerID owns it.
func (s *rewriteServiceImpl) ownedTask(ctx context.Context, taskID, ownerID uuid.UUID) (*domain.Task, error) {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, NewRewriteServiceError("get_task", "failed to load task", err)
	}
	if task.OwnerID != ownerID {
		logger.FromContextOrDefault(ctx, s.logger).Warn("task access denied",
			"task_id", taskID,
			"owner_id", task.OwnerID,
			"requester_id", ownerID)
		return nil, ErrNotOwned
	}
	return task, nil
}
