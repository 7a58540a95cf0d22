package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/store"
)

const taskColumns = `id, owner_id, display_name, status, config, correlation_label, error_message,
	total_items, completed_items, failed_items, created_at, updated_at, completed_at`

const itemColumns = `id, task_id, source_ref, source_snapshot, status, error_message, attempt,
	started_at, completed_at, created_at, updated_at`

const versionColumns = `v.id, v.item_id, v.position, v.version_label, v.title, v.body, v.status,
	v.error_message, v.completed_at, v.updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db store.DBTX
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// It accepts a database connection or transaction that should be managed by the caller.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{db: db}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx implements store.TaskStore.WithTx
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx}
}

// CreateTaskBundle implements store.TaskStore.CreateTaskBundle
func (s *PostgresTaskStore) CreateTaskBundle(ctx context.Context, bundle store.TaskBundle) error {
	log := logger.FromContext(ctx)

	if bundle.Task == nil {
		return fmt.Errorf("%w: nil task", store.ErrInvalidEntity)
	}
	if err := bundle.Task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	for _, item := range bundle.Items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
	}

	config, err := json.Marshal(bundle.Task.Config)
	if err != nil {
		return fmt.Errorf("%w: invalid config: %v", store.ErrInvalidEntity, err)
	}

	err = store.InTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		t := bundle.Task
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (`+taskColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			t.ID, t.OwnerID, t.DisplayName, t.Status, config, nullString(t.CorrelationLabel),
			t.ErrorMessage, t.TotalItems, t.CompletedItems, t.FailedItems,
			t.CreatedAt, t.UpdatedAt, t.CompletedAt,
		)
		if err != nil {
			return MapError(err)
		}

		for seq, item := range bundle.Items {
			snapshot, err := json.Marshal(item.SourceSnapshot)
			if err != nil {
				return fmt.Errorf("%w: invalid source snapshot: %v", store.ErrInvalidEntity, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO items (id, task_id, seq, source_ref, source_snapshot, status,
					error_message, attempt, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				item.ID, item.TaskID, seq, item.SourceRef, snapshot, item.Status,
				item.ErrorMessage, item.Attempt, item.CreatedAt, item.UpdatedAt,
			)
			if err != nil {
				return MapError(err)
			}

			for _, v := range bundle.Versions[item.ID] {
				_, err = tx.ExecContext(ctx, `
					INSERT INTO versions (id, item_id, position, version_label, title, body,
						status, error_message, updated_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
					v.ID, v.ItemID, v.Position, v.Label, v.Title, v.Body,
					v.Status, v.ErrorMessage, v.UpdatedAt,
				)
				if err != nil {
					return MapError(err)
				}
			}
		}
		return nil
	})
	if err != nil {
		log.Error("failed to create task bundle",
			"task_id", bundle.Task.ID,
			"item_count", len(bundle.Items),
			"error", err)
		return store.NewStoreError("task", "create", "failed to persist task bundle", err)
	}

	log.Debug("task bundle created",
		"task_id", bundle.Task.ID,
		"item_count", len(bundle.Items))
	return nil
}

// GetTask implements store.TaskStore.GetTask
func (s *PostgresTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTaskNotFound
	}
	if err != nil {
		return nil, store.NewStoreError("task", "get", "failed to load task", MapError(err))
	}
	return task, nil
}

// ListTasksByOwner implements store.TaskStore.ListTasksByOwner
func (s *PostgresTaskStore) ListTasksByOwner(
	ctx context.Context,
	ownerID uuid.UUID,
	limit, offset int,
) ([]*domain.Task, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE owner_id = $1`, ownerID).
		Scan(&total)
	if err != nil {
		return nil, 0, store.NewStoreError("task", "list", "failed to count tasks", MapError(err))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE owner_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, 0, store.NewStoreError("task", "list", "failed to query tasks", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]*domain.Task, 0, limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, store.NewStoreError("task", "list", "failed to scan task", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, store.NewStoreError("task", "list", "failed to iterate tasks", err)
	}
	return tasks, total, nil
}

// GetItem implements store.TaskStore.GetItem
func (s *PostgresTaskStore) GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrItemNotFound
	}
	if err != nil {
		return nil, store.NewStoreError("item", "get", "failed to load item", MapError(err))
	}
	return item, nil
}

// ListItemsByTask implements store.TaskStore.ListItemsByTask
func (s *PostgresTaskStore) ListItemsByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.Item, error) {
	return listItems(ctx, s.db, taskID)
}

func listItems(ctx context.Context, db store.DBTX, taskID uuid.UUID) ([]*domain.Item, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE task_id = $1 ORDER BY seq`, taskID)
	if err != nil {
		return nil, store.NewStoreError("item", "list", "failed to query items", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var items []*domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, store.NewStoreError("item", "list", "failed to scan item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("item", "list", "failed to iterate items", err)
	}
	return items, nil
}

// ListVersionsByTask implements store.TaskStore.ListVersionsByTask
func (s *PostgresTaskStore) ListVersionsByTask(
	ctx context.Context,
	taskID uuid.UUID,
) (map[uuid.UUID][]*domain.Version, error) {
	versions, err := s.queryVersions(ctx, `
		SELECT `+versionColumns+`
		FROM versions v
		JOIN items i ON i.id = v.item_id
		WHERE i.task_id = $1
		ORDER BY i.seq, v.position`, taskID)
	if err != nil {
		return nil, err
	}

	byItem := make(map[uuid.UUID][]*domain.Version)
	for _, v := range versions {
		byItem[v.ItemID] = append(byItem[v.ItemID], v)
	}
	return byItem, nil
}

// ListVersionsByItem implements store.TaskStore.ListVersionsByItem
func (s *PostgresTaskStore) ListVersionsByItem(ctx context.Context, itemID uuid.UUID) ([]*domain.Version, error) {
	return s.queryVersions(ctx, `
		SELECT `+versionColumns+`
		FROM versions v
		WHERE v.item_id = $1
		ORDER BY v.position`, itemID)
}

func (s *PostgresTaskStore) queryVersions(ctx context.Context, query string, arg any) ([]*domain.Version, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, store.NewStoreError("version", "list", "failed to query versions", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var versions []*domain.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, store.NewStoreError("version", "list", "failed to scan version", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("version", "list", "failed to iterate versions", err)
	}
	return versions, nil
}

// MarkItemProcessing implements store.TaskStore.MarkItemProcessing
func (s *PostgresTaskStore) MarkItemProcessing(ctx context.Context, itemID uuid.UUID) (bool, error) {
	var started bool
	err := store.InTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		now := time.Now().UTC()
		var taskID uuid.UUID
		err := tx.QueryRowContext(ctx, `
			UPDATE items
			SET status = $2, started_at = $3, updated_at = $3
			WHERE id = $1 AND status IN ($4, $2)
			RETURNING task_id`,
			itemID, domain.ItemStatusProcessing, now, domain.ItemStatusPending,
		).Scan(&taskID)
		if errors.Is(err, sql.ErrNoRows) {
			return itemExists(ctx, tx, itemID)
		}
		if err != nil {
			return MapError(err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE tasks SET status = $2, updated_at = $3
			WHERE id = $1 AND status = $4`,
			taskID, domain.TaskStatusProcessing, now, domain.TaskStatusPending,
		)
		if err != nil {
			return MapError(err)
		}
		started = true
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return false, err
		}
		return false, store.NewStoreError("item", "update", "failed to mark item processing", err)
	}
	return started, nil
}

// CompleteItem implements store.TaskStore.CompleteItem
func (s *PostgresTaskStore) CompleteItem(
	ctx context.Context,
	itemID uuid.UUID,
	attempt int,
	contents []domain.VersionContent,
) error {
	err := store.InTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		locked, err := lockItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if locked.attempt != attempt {
			return fmt.Errorf("%w: item %s is on attempt %d, not %d",
				store.ErrStateConflict, itemID, locked.attempt, attempt)
		}
		if locked.status.IsTerminal() {
			return fmt.Errorf("%w: item %s is already %s", store.ErrStateConflict, itemID, locked.status)
		}
		taskID := locked.taskID

		now := time.Now().UTC()
		for position, content := range contents {
			_, err := tx.ExecContext(ctx, `
				UPDATE versions
				SET title = $3, body = $4, status = $5, error_message = '',
					completed_at = $6, updated_at = $6
				WHERE item_id = $1 AND position = $2`,
				itemID, position, content.Title, content.Body, domain.VersionStatusCompleted, now,
			)
			if err != nil {
				return MapError(err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE versions
			SET status = $2, error_message = $3, completed_at = $4, updated_at = $4
			WHERE item_id = $1 AND status = $5`,
			itemID, domain.VersionStatusFailed, domain.ErrMsgVersionNotGenerated, now,
			domain.VersionStatusGenerating,
		)
		if err != nil {
			return MapError(err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE items
			SET status = $2, error_message = '', completed_at = $3, updated_at = $3
			WHERE id = $1`,
			itemID, domain.ItemStatusCompleted, now,
		)
		if err != nil {
			return MapError(err)
		}

		_, err = refreshTaskProgress(ctx, tx, taskID)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) || errors.Is(err, store.ErrStateConflict) {
			return err
		}
		return store.NewStoreError("item", "complete", "failed to complete item", err)
	}
	return nil
}

// FailItem implements store.TaskStore.FailItem
func (s *PostgresTaskStore) FailItem(
	ctx context.Context,
	itemID uuid.UUID,
	attempt int,
	message string,
) (bool, error) {
	var failed bool
	err := store.InTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		locked, err := lockItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if locked.attempt != attempt {
			return nil
		}
		taskID := locked.taskID
		switch locked.status {
		case domain.ItemStatusCompleted:
			return nil
		case domain.ItemStatusFailed:
			failed = true
			return nil
		}

		now := time.Now().UTC()
		_, err = tx.ExecContext(ctx, `
			UPDATE versions
			SET status = $2, error_message = $3, completed_at = $4, updated_at = $4
			WHERE item_id = $1 AND status = $5`,
			itemID, domain.VersionStatusFailed, message, now, domain.VersionStatusGenerating,
		)
		if err != nil {
			return MapError(err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE items
			SET status = $2, error_message = $3, completed_at = $4, updated_at = $4
			WHERE id = $1`,
			itemID, domain.ItemStatusFailed, message, now,
		)
		if err != nil {
			return MapError(err)
		}

		if _, err := refreshTaskProgress(ctx, tx, taskID); err != nil {
			return err
		}
		failed = true
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return false, err
		}
		return false, store.NewStoreError("item", "fail", "failed to mark item failed", err)
	}
	return failed, nil
}

// ResetItemForReprocess implements store.TaskStore.ResetItemForReprocess
func (s *PostgresTaskStore) ResetItemForReprocess(ctx context.Context, itemID uuid.UUID) (int, error) {
	var attempt int
	err := store.InTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		locked, err := lockItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if locked.status != domain.ItemStatusFailed {
			return fmt.Errorf("%w: item %s is %s", store.ErrStateConflict, itemID, locked.status)
		}
		taskID := locked.taskID

		now := time.Now().UTC()
		err = tx.QueryRowContext(ctx, `
			UPDATE items
			SET status = $2, error_message = '', attempt = attempt + 1,
				started_at = NULL, completed_at = NULL, updated_at = $3
			WHERE id = $1
			RETURNING attempt`,
			itemID, domain.ItemStatusPending, now,
		).Scan(&attempt)
		if err != nil {
			return MapError(err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE versions
			SET title = '', body = '', status = $2, error_message = '',
				completed_at = NULL, updated_at = $3
			WHERE item_id = $1`,
			itemID, domain.VersionStatusGenerating, now,
		)
		if err != nil {
			return MapError(err)
		}

		_, err = refreshTaskProgress(ctx, tx, taskID)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) || errors.Is(err, store.ErrStateConflict) {
			return 0, err
		}
		return 0, store.NewStoreError("item", "reset", "failed to reset item", err)
	}
	return attempt, nil
}

// RefreshTaskProgress implements store.TaskStore.RefreshTaskProgress
func (s *PostgresTaskStore) RefreshTaskProgress(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	var task *domain.Task
	err := store.InTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		task, err = refreshTaskProgress(ctx, tx, taskID)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil, err
		}
		return nil, store.NewStoreError("task", "refresh", "failed to refresh task progress", err)
	}
	return task, nil
}

// refreshTaskProgress locks the task row, recounts its items and writes
// the derived status and cached counts. Locking the task first serialises
// concurrent workers finishing items of the same task.
func refreshTaskProgress(ctx context.Context, tx *sql.Tx, taskID uuid.UUID) (*domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, taskID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTaskNotFound
	}
	if err != nil {
		return nil, MapError(err)
	}

	items, err := listItems(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}

	progress := domain.ProgressOf(items)
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

	_, err = tx.ExecContext(ctx, `
		UPDATE tasks
		SET status = $2, error_message = $3, total_items = $4, completed_items = $5,
			failed_items = $6, updated_at = $7, completed_at = $8
		WHERE id = $1`,
		task.ID, task.Status, task.ErrorMessage, task.TotalItems, task.CompletedItems,
		task.FailedItems, task.UpdatedAt, task.CompletedAt,
	)
	if err != nil {
		return nil, MapError(err)
	}
	return task, nil
}

// ListItemIDsByStatus implements store.TaskStore.ListItemIDsByStatus
func (s *PostgresTaskStore) ListItemIDsByStatus(
	ctx context.Context,
	status domain.ItemStatus,
	olderThan time.Time,
) ([]uuid.UUID, error) {
	query := `SELECT id FROM items WHERE status = $1 ORDER BY updated_at`
	args := []any{status}
	if !olderThan.IsZero() {
		query = `SELECT id FROM items WHERE status = $1 AND updated_at < $2 ORDER BY updated_at`
		args = append(args, olderThan)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewStoreError("item", "list", "failed to query items by status", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, store.NewStoreError("item", "list", "failed to scan item id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("item", "list", "failed to iterate item ids", err)
	}
	return ids, nil
}

// lockItem takes a row lock on the item and returns its task and status.
func lockItem(ctx context.Context, tx *sql.Tx, itemID uuid.UUID) (lockedItem, error) {
	var locked lockedItem
	err := tx.QueryRowContext(ctx,
		`SELECT task_id, status, attempt FROM items WHERE id = $1 FOR UPDATE`, itemID,
	).Scan(&locked.taskID, &locked.status, &locked.attempt)
	if errors.Is(err, sql.ErrNoRows) {
		return lockedItem{}, store.ErrItemNotFound
	}
	if err != nil {
		return lockedItem{}, MapError(err)
	}
	return locked, nil
}

// lockedItem is the state of an item row held under FOR UPDATE.
type lockedItem struct {
	taskID  uuid.UUID
	status  domain.ItemStatus
	attempt int
}

// itemExists returns nil when the item exists and ErrItemNotFound otherwise.
func itemExists(ctx context.Context, tx *sql.Tx, itemID uuid.UUID) error {
	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM items WHERE id = $1)`, itemID).
		Scan(&exists)
	if err != nil {
		return MapError(err)
	}
	if !exists {
		return store.ErrItemNotFound
	}
	return nil
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task        domain.Task
		config      []byte
		label       sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(
		&task.ID, &task.OwnerID, &task.DisplayName, &task.Status, &config, &label,
		&task.ErrorMessage, &task.TotalItems, &task.CompletedItems, &task.FailedItems,
		&task.CreatedAt, &task.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(config, &task.Config); err != nil {
		return nil, fmt.Errorf("failed to decode task config: %w", err)
	}
	if label.Valid {
		task.CorrelationLabel = &label.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}
	return &task, nil
}

func scanItem(row rowScanner) (*domain.Item, error) {
	var (
		item        domain.Item
		snapshot    []byte
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(
		&item.ID, &item.TaskID, &item.SourceRef, &snapshot, &item.Status, &item.ErrorMessage,
		&item.Attempt, &startedAt, &completedAt, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(snapshot, &item.SourceSnapshot); err != nil {
		return nil, fmt.Errorf("failed to decode source snapshot: %w", err)
	}
	item.StartedAt = timePtr(startedAt)
	item.CompletedAt = timePtr(completedAt)
	return &item, nil
}

func scanVersion(row rowScanner) (*domain.Version, error) {
	var (
		v           domain.Version
		completedAt sql.NullTime
	)
	err := row.Scan(
		&v.ID, &v.ItemID, &v.Position, &v.Label, &v.Title, &v.Body, &v.Status,
		&v.ErrorMessage, &completedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.CompletedAt = timePtr(completedAt)
	return &v, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
