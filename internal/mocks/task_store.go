package mocks

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/store"
)

// MemoryTaskStore implements store.TaskStore in memory with the same
// state transitions as the PostgreSQL store. Returned entities are copies.
type MemoryTaskStore struct {
	// CreateTaskBundleFn, when set, replaces CreateTaskBundle.
	CreateTaskBundleFn func(ctx context.Context, bundle store.TaskBundle) error
	// CompleteItemErr, when set, is returned by CompleteItem without writing.
	CompleteItemErr error
	// ResetItemErr, when set, is returned by ResetItemForReprocess without writing.
	ResetItemErr error

	mu       sync.Mutex
	tasks    map[uuid.UUID]*domain.Task
	items    map[uuid.UUID]*domain.Item
	order    map[uuid.UUID][]uuid.UUID // task ID -> item IDs in submission order
	versions map[uuid.UUID][]*domain.Version
}

// NewMemoryTaskStore creates an empty in-memory task store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks:    make(map[uuid.UUID]*domain.Task),
		items:    make(map[uuid.UUID]*domain.Item),
		order:    make(map[uuid.UUID][]uuid.UUID),
		versions: make(map[uuid.UUID][]*domain.Version),
	}
}

var _ store.TaskStore = (*MemoryTaskStore)(nil)

// TaskCount returns the number of stored tasks.
func (m *MemoryTaskStore) TaskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// SetItemUpdatedAt backdates an item, used to simulate stuck work.
func (m *MemoryTaskStore) SetItemUpdatedAt(itemID uuid.UUID, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[itemID]; ok {
		item.UpdatedAt = at
	}
}

// CreateTaskBundle implements store.TaskStore.CreateTaskBundle
func (m *MemoryTaskStore) CreateTaskBundle(ctx context.Context, bundle store.TaskBundle) error {
	if m.CreateTaskBundleFn != nil {
		return m.CreateTaskBundleFn(ctx, bundle)
	}
	if err := bundle.Task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[bundle.Task.ID]; exists {
		return store.ErrDuplicate
	}
	task := *bundle.Task
	m.tasks[task.ID] = &task
	for _, item := range bundle.Items {
		copied := *item
		m.items[item.ID] = &copied
		m.order[task.ID] = append(m.order[task.ID], item.ID)
		for _, v := range bundle.Versions[item.ID] {
			vc := *v
			m.versions[item.ID] = append(m.versions[item.ID], &vc)
		}
	}
	return nil
}

// GetTask implements store.TaskStore.GetTask
func (m *MemoryTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

// ListTasksByOwner implements store.TaskStore.ListTasksByOwner
func (m *MemoryTaskStore) ListTasksByOwner(
	ctx context.Context,
	ownerID uuid.UUID,
	limit, offset int,
) ([]*domain.Task, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var owned []*domain.Task
	for _, task := range m.tasks {
		if task.OwnerID == ownerID {
			copied := *task
			owned = append(owned, &copied)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID.String() < owned[j].ID.String()
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	return page(owned, limit, offset), len(owned), nil
}

// GetItem implements store.TaskStore.GetItem
func (m *MemoryTaskStore) GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, store.ErrItemNotFound
	}
	copied := *item
	return &copied, nil
}

// ListItemsByTask implements store.TaskStore.ListItemsByTask
func (m *MemoryTaskStore) ListItemsByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.itemsLocked(taskID), nil
}

func (m *MemoryTaskStore) itemsLocked(taskID uuid.UUID) []*domain.Item {
	var items []*domain.Item
	for _, id := range m.order[taskID] {
		copied := *m.items[id]
		items = append(items, &copied)
	}
	return items
}

// ListVersionsByTask implements store.TaskStore.ListVersionsByTask
func (m *MemoryTaskStore) ListVersionsByTask(
	ctx context.Context,
	taskID uuid.UUID,
) (map[uuid.UUID][]*domain.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID][]*domain.Version)
	for _, id := range m.order[taskID] {
		out[id] = m.versionsLocked(id)
	}
	return out, nil
}

// ListVersionsByItem implements store.TaskStore.ListVersionsByItem
func (m *MemoryTaskStore) ListVersionsByItem(ctx context.Context, itemID uuid.UUID) ([]*domain.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versionsLocked(itemID), nil
}

func (m *MemoryTaskStore) versionsLocked(itemID uuid.UUID) []*domain.Version {
	var out []*domain.Version
	for _, v := range m.versions[itemID] {
		copied := *v
		out = append(out, &copied)
	}
	return out
}

// MarkItemProcessing implements store.TaskStore.MarkItemProcessing
func (m *MemoryTaskStore) MarkItemProcessing(ctx context.Context, itemID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok {
		return false, store.ErrItemNotFound
	}
	if item.Status.IsTerminal() {
		return false, nil
	}
	now := time.Now().UTC()
	item.Status = domain.ItemStatusProcessing
	item.StartedAt = &now
	item.UpdatedAt = now

	if task := m.tasks[item.TaskID]; task != nil && task.Status == domain.TaskStatusPending {
		task.Status = domain.TaskStatusProcessing
		task.UpdatedAt = now
	}
	return true, nil
}

// CompleteItem implements store.TaskStore.CompleteItem
func (m *MemoryTaskStore) CompleteItem(
	ctx context.Context,
	itemID uuid.UUID,
	attempt int,
	contents []domain.VersionContent,
) error {
	if m.CompleteItemErr != nil {
		return m.CompleteItemErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok {
		return store.ErrItemNotFound
	}
	if item.Attempt != attempt {
		return fmt.Errorf("%w: item %s is on attempt %d, not %d", store.ErrStateConflict, itemID, item.Attempt, attempt)
	}
	if item.Status.IsTerminal() {
		return fmt.Errorf("%w: item %s is already %s", store.ErrStateConflict, itemID, item.Status)
	}

	now := time.Now().UTC()
	for _, v := range m.versions[itemID] {
		if v.Position < len(contents) {
			v.Title = contents[v.Position].Title
			v.Body = contents[v.Position].Body
			v.Status = domain.VersionStatusCompleted
			v.ErrorMessage = ""
		} else if v.Status == domain.VersionStatusGenerating {
			v.Status = domain.VersionStatusFailed
			v.ErrorMessage = domain.ErrMsgVersionNotGenerated
		}
		v.CompletedAt = &now
		v.UpdatedAt = now
	}

	item.Status = domain.ItemStatusCompleted
	item.ErrorMessage = ""
	item.CompletedAt = &now
	item.UpdatedAt = now
	m.refreshLocked(item.TaskID)
	return nil
}

// FailItem implements store.TaskStore.FailItem
func (m *MemoryTaskStore) FailItem(ctx context.Context, itemID uuid.UUID, attempt int, message string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok {
		return false, store.ErrItemNotFound
	}
	if item.Attempt != attempt {
		return false, nil
	}
	switch item.Status {
	case domain.ItemStatusCompleted:
		return false, nil
	case domain.ItemStatusFailed:
		return true, nil
	}

	now := time.Now().UTC()
	for _, v := range m.versions[itemID] {
		if v.Status == domain.VersionStatusGenerating {
			v.Status = domain.VersionStatusFailed
			v.ErrorMessage = message
			v.CompletedAt = &now
			v.UpdatedAt = now
		}
	}
	item.Status = domain.ItemStatusFailed
	item.ErrorMessage = message
	item.CompletedAt = &now
	item.UpdatedAt = now
	m.refreshLocked(item.TaskID)
	return true, nil
}

// ResetItemForReprocess implements store.TaskStore.ResetItemForReprocess
func (m *MemoryTaskStore) ResetItemForReprocess(ctx context.Context, itemID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ResetItemErr != nil {
		return 0, m.ResetItemErr
	}

	item, ok := m.items[itemID]
	if !ok {
		return 0, store.ErrItemNotFound
	}
	if item.Status != domain.ItemStatusFailed {
		return 0, fmt.Errorf("%w: item %s is %s", store.ErrStateConflict, itemID, item.Status)
	}

	now := time.Now().UTC()
	item.Status = domain.ItemStatusPending
	item.ErrorMessage = ""
	item.Attempt++
	item.StartedAt = nil
	item.CompletedAt = nil
	item.UpdatedAt = now
	for _, v := range m.versions[itemID] {
		v.Title = ""
		v.Body = ""
		v.Status = domain.VersionStatusGenerating
		v.ErrorMessage = ""
		v.CompletedAt = nil
		v.UpdatedAt = now
	}
	m.refreshLocked(item.TaskID)
	return item.Attempt, nil
}

// RefreshTaskProgress implements store.TaskStore.RefreshTaskProgress
func (m *MemoryTaskStore) RefreshTaskProgress(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[taskID]; !ok {
		return nil, store.ErrTaskNotFound
	}
	m.refreshLocked(taskID)
	copied := *m.tasks[taskID]
	return &copied, nil
}

func (m *MemoryTaskStore) refreshLocked(taskID uuid.UUID) {
	task, ok := m.tasks[taskID]
	if !ok {
		return
	}
	progress := domain.ProgressOf(m.itemsLocked(taskID))
	now := time.Now().UTC()
	task.Status = domain.DeriveTaskStatus(progress)
	task.ErrorMessage = domain.TaskErrorMessage(progress)
	task.TotalItems = progress.Total
	task.CompletedItems = progress.Completed
	task.FailedItems = progress.Failed
	task.UpdatedAt = now
	if task.Status.IsTerminal() {
		task.CompletedAt = &now
	} else {
		task.CompletedAt = nil
	}
}

// ListItemIDsByStatus implements store.TaskStore.ListItemIDsByStatus
func (m *MemoryTaskStore) ListItemIDsByStatus(
	ctx context.Context,
	status domain.ItemStatus,
	olderThan time.Time,
) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*domain.Item
	for _, item := range m.items {
		if item.Status != status {
			continue
		}
		if !olderThan.IsZero() && !item.UpdatedAt.Before(olderThan) {
			continue
		}
		matched = append(matched, item)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].UpdatedAt.Before(matched[j].UpdatedAt) })

	ids := make([]uuid.UUID, 0, len(matched))
	for _, item := range matched {
		ids = append(ids, item.ID)
	}
	return ids, nil
}

// WithTx implements store.TaskStore.WithTx. The memory store has no
// transactions, so it returns itself.
func (m *MemoryTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return m
}
