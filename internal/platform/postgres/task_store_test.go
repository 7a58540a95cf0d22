package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/platform/postgres"
	"github.com/phrazzld/quill-api/internal/store"
	"github.com/phrazzld/quill-api/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildBundle(t *testing.T, owner uuid.UUID, itemCount, versionCount int) store.TaskBundle {
	t.Helper()
	cfg := domain.GenerationConfig{ContentType: domain.ContentTypeArticle, VersionCount: versionCount}
	task, err := domain.NewTask(owner, "integration", cfg, "label-1", itemCount)
	require.NoError(t, err)

	bundle := store.TaskBundle{Task: task, Versions: map[uuid.UUID][]*domain.Version{}}
	for i := 0; i < itemCount; i++ {
		item, err := domain.NewItem(task.ID, uuid.NewString(), domain.SourceSnapshot{
			Title: "Source", Body: "Original body", Attributes: map[string]string{"lang": "en"},
		})
		require.NoError(t, err)
		bundle.Items = append(bundle.Items, item)
		bundle.Versions[item.ID] = domain.NewPlaceholderVersions(item.ID, versionCount)
	}
	return bundle
}

func TestPostgresTaskStore_Integration_Lifecycle(t *testing.T) {
	t.Parallel()
	db := testdb.GetTestDB(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		owner := newFundedOwner(t, tx, 0)
		s := postgres.NewPostgresTaskStore(tx)

		bundle := buildBundle(t, owner, 3, 2)
		require.NoError(t, s.CreateTaskBundle(ctx, bundle))

		got, err := s.GetTask(ctx, bundle.Task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusPending, got.Status)
		assert.Equal(t, 2, got.Config.VersionCount)
		require.NotNil(t, got.CorrelationLabel)
		assert.Equal(t, "label-1", *got.CorrelationLabel)

		items, err := s.ListItemsByTask(ctx, bundle.Task.ID)
		require.NoError(t, err)
		require.Len(t, items, 3)
		for i, item := range items {
			assert.Equal(t, bundle.Items[i].ID, item.ID, "items keep submission order")
			assert.Equal(t, "en", item.SourceSnapshot.Attributes["lang"])
		}

		first, second, third := items[0].ID, items[1].ID, items[2].ID

		started, err := s.MarkItemProcessing(ctx, first)
		require.NoError(t, err)
		assert.True(t, started)
		got, err = s.GetTask(ctx, bundle.Task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusProcessing, got.Status)

		// One section for two placeholders: the second is marked not generated.
		require.NoError(t, s.CompleteItem(ctx, first, 1, []domain.VersionContent{{Title: "T1", Body: "B1"}}))
		versions, err := s.ListVersionsByItem(ctx, first)
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, domain.VersionStatusCompleted, versions[0].Status)
		assert.Equal(t, "T1", versions[0].Title)
		assert.Equal(t, domain.VersionStatusFailed, versions[1].Status)
		assert.Equal(t, domain.ErrMsgVersionNotGenerated, versions[1].ErrorMessage)

		err = s.CompleteItem(ctx, first, 1, nil)
		assert.ErrorIs(t, err, store.ErrStateConflict)

		failed, err := s.FailItem(ctx, second, 1, "generation timed out")
		require.NoError(t, err)
		assert.True(t, failed)
		failed, err = s.FailItem(ctx, first, 1, "late failure")
		require.NoError(t, err)
		assert.False(t, failed, "completed items are never failed")

		started, err = s.MarkItemProcessing(ctx, second)
		require.NoError(t, err)
		assert.False(t, started, "terminal items are skipped")

		got, err = s.GetTask(ctx, bundle.Task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusProcessing, got.Status)
		assert.Equal(t, 1, got.CompletedItems)
		assert.Equal(t, 1, got.FailedItems)

		require.NoError(t, s.CompleteItem(ctx, third, 1, []domain.VersionContent{{Body: "a"}, {Body: "b"}}))
		got, err = s.GetTask(ctx, bundle.Task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCompleted, got.Status)
		assert.NotNil(t, got.CompletedAt)
		assert.Equal(t, "1 of 3 items failed", got.ErrorMessage)

		attempt, err := s.ResetItemForReprocess(ctx, second)
		require.NoError(t, err)
		assert.Equal(t, 2, attempt)
		_, err = s.ResetItemForReprocess(ctx, first)
		assert.ErrorIs(t, err, store.ErrStateConflict)

		reset, err := s.GetItem(ctx, second)
		require.NoError(t, err)
		assert.Equal(t, domain.ItemStatusPending, reset.Status)
		assert.Empty(t, reset.ErrorMessage)
		versionsByItem, err := s.ListVersionsByTask(ctx, bundle.Task.ID)
		require.NoError(t, err)
		for _, v := range versionsByItem[second] {
			assert.Equal(t, domain.VersionStatusGenerating, v.Status)
			assert.Empty(t, v.ErrorMessage)
		}
		got, err = s.GetTask(ctx, bundle.Task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusProcessing, got.Status)
		assert.Nil(t, got.CompletedAt)

		pending, err := s.ListItemIDsByStatus(ctx, domain.ItemStatusPending, time.Time{})
		require.NoError(t, err)
		assert.Contains(t, pending, second)

		// A worker still holding attempt 1 can neither fail nor complete attempt 2.
		failed, err = s.FailItem(ctx, second, 1, "stale failure")
		require.NoError(t, err)
		assert.False(t, failed)
		err = s.CompleteItem(ctx, second, 1, []domain.VersionContent{{Body: "stale"}})
		assert.ErrorIs(t, err, store.ErrStateConflict)
		reset, err = s.GetItem(ctx, second)
		require.NoError(t, err)
		assert.Equal(t, domain.ItemStatusPending, reset.Status)

		require.NoError(t, s.CompleteItem(ctx, second, 2, []domain.VersionContent{{Body: "x"}, {Body: "y"}}))

		tasks, total, err := s.ListTasksByOwner(ctx, owner, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, tasks, 1)
		assert.Equal(t, bundle.Task.ID, tasks[0].ID)
	})
}

func TestPostgresTaskStore_Integration_NotFound(t *testing.T) {
	t.Parallel()
	db := testdb.GetTestDB(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		s := postgres.NewPostgresTaskStore(tx)

		_, err := s.GetTask(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
		_, err = s.GetItem(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrItemNotFound)
		_, err = s.MarkItemProcessing(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrItemNotFound)
	})
}

func TestPostgresTaskStore_Integration_BundleIsAtomic(t *testing.T) {
	t.Parallel()
	db := testdb.GetTestDB(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		owner := newFundedOwner(t, tx, 0)
		s := postgres.NewPostgresTaskStore(tx)

		bundle := buildBundle(t, owner, 2, 1)
		// Duplicate version IDs violate the primary key on the second insert.
		bundle.Versions[bundle.Items[1].ID][0].ID = bundle.Versions[bundle.Items[0].ID][0].ID

		// Run in a savepoint so the outer test transaction stays usable.
		_, err := tx.ExecContext(ctx, "SAVEPOINT bundle")
		require.NoError(t, err)
		err = s.CreateTaskBundle(ctx, bundle)
		require.Error(t, err)
		assert.ErrorIs(t, err, store.ErrDuplicate)
		_, err = tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT bundle")
		require.NoError(t, err)

		_, err = s.GetTask(ctx, bundle.Task.ID)
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}
