package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
)

// Paging defaults for List.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// TaskStatusView is the polling answer for one task. Status and Progress
// are derived from the item rows at read time.
type TaskStatusView struct {
	Task     *domain.Task    `json:"task"`
	Progress domain.Progress `json:"progress"`
	Items    []ItemView      `json:"items"`
}

// ItemView is one item with its versions ordered by position.
type ItemView struct {
	Item     *domain.Item      `json:"item"`
	Versions []*domain.Version `json:"versions"`
}

// Page selects a window of a list.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to the supported range.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// TaskSummary is a list entry built from the task row alone.
type TaskSummary struct {
	ID               uuid.UUID          `json:"id"`
	DisplayName      string             `json:"display_name"`
	Status           domain.TaskStatus  `json:"status"`
	ContentType      domain.ContentType `json:"content_type"`
	CorrelationLabel *string            `json:"correlation_label,omitempty"`
	ErrorMessage     string             `json:"error_message,omitempty"`
	TotalItems       int                `json:"total_items"`
	CompletedItems   int                `json:"completed_items"`
	FailedItems      int                `json:"failed_items"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty"`
}

// TaskPage is one page of task summaries and the owner's total task count.
type TaskPage struct {
	Tasks  []TaskSummary `json:"tasks"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func summarize(task *domain.Task) TaskSummary {
	return TaskSummary{
		ID:               task.ID,
		DisplayName:      task.DisplayName,
		Status:           task.Status,
		ContentType:      task.Config.ContentType,
		CorrelationLabel: task.CorrelationLabel,
		ErrorMessage:     task.ErrorMessage,
		TotalItems:       task.TotalItems,
		CompletedItems:   task.CompletedItems,
		FailedItems:      task.FailedItems,
		CreatedAt:        task.CreatedAt,
		UpdatedAt:        task.UpdatedAt,
		CompletedAt:      task.CompletedAt,
	}
}

// Status implements RewriteService.Status
func (s *rewriteServiceImpl) Status(ctx context.Context, taskID, ownerID uuid.UUID) (*TaskStatusView, error) {
	task, err := s.ownedTask(ctx, taskID, ownerID)
	if err != nil {
		return nil, err
	}

	items, err := s.tasks.ListItemsByTask(ctx, taskID)
	if err != nil {
		return nil, NewRewriteServiceError("task_status", "failed to list items", err)
	}
	versionsByItem, err := s.tasks.ListVersionsByTask(ctx, taskID)
	if err != nil {
		return nil, NewRewriteServiceError("task_status", "failed to list versions", err)
	}

	progress := domain.ProgressOf(items)
	task.Status = domain.DeriveTaskStatus(progress)
	task.ErrorMessage = domain.TaskErrorMessage(progress)
	task.TotalItems = progress.Total
	task.CompletedItems = progress.Completed
	task.FailedItems = progress.Failed

	view := &TaskStatusView{
		Task:     task,
		Progress: progress,
		Items:    make([]ItemView, 0, len(items)),
	}
	for _, item := range items {
		versions := versionsByItem[item.ID]
		if versions == nil {
			versions = []*domain.Version{}
		}
		view.Items = append(view.Items, ItemView{Item: item, Versions: versions})
	}
	return view, nil
}

// List implements RewriteService.List
func (s *rewriteServiceImpl) List(ctx context.Context, ownerID uuid.UUID, page Page) (*TaskPage, error) {
	page = page.Normalize()

	tasks, total, err := s.tasks.ListTasksByOwner(ctx, ownerID, page.Limit, page.Offset)
	if err != nil {
		return nil, NewRewriteServiceError("list_tasks", "failed to list tasks", err)
	}

	out := &TaskPage{
		Tasks:  make([]TaskSummary, 0, len(tasks)),
		Total:  total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	for _, task := range tasks {
		out.Tasks = append(out.Tasks, summarize(task))
	}
	return out, nil
}
