package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRunner_SubmitProcessesItem(t *testing.T) {
	t.Parallel()

	processor := &recordingProcessor{}
	runner := NewTaskRunner(&fakeSource{}, processor, DefaultTaskRunnerConfig(), setupTestLogger())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	itemID := uuid.New()
	require.NoError(t, runner.Submit(context.Background(), itemID))

	assert.Eventually(t, func() bool {
		return len(processor.Processed()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, itemID, processor.Processed()[0])
}

func TestTaskRunner_DeduplicatesQueuedItems(t *testing.T) {
	t.Parallel()

	processor := &recordingProcessor{gate: make(chan struct{})}
	config := DefaultTaskRunnerConfig()
	config.WorkerCount = 1
	runner := NewTaskRunner(&fakeSource{}, processor, config, setupTestLogger())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	itemID := uuid.New()
	require.NoError(t, runner.Submit(context.Background(), itemID))
	require.NoError(t, runner.Submit(context.Background(), itemID))
	close(processor.gate)

	assert.Eventually(t, func() bool {
		return len(processor.Processed()) == 1
	}, time.Second, 5*time.Millisecond)

	// Once finished the item may be queued again
	assert.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return len(runner.queued) == 0
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, runner.Submit(context.Background(), itemID))
	assert.Eventually(t, func() bool {
		return len(processor.Processed()) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestTaskRunner_QueueFull(t *testing.T) {
	t.Parallel()

	config := DefaultTaskRunnerConfig()
	config.QueueSize = 1
	// Not started, so nothing drains the queue
	runner := NewTaskRunner(&fakeSource{}, &recordingProcessor{}, config, setupTestLogger())

	require.NoError(t, runner.Submit(context.Background(), uuid.New()))
	full := uuid.New()
	err := runner.Submit(context.Background(), full)
	assert.ErrorIs(t, err, ErrQueueFull)

	runner.mu.Lock()
	_, tracked := runner.queued[full]
	runner.mu.Unlock()
	assert.False(t, tracked, "a rejected item must not stay marked as queued")
}

func TestTaskRunner_RecoverRequeuesUnfinishedItems(t *testing.T) {
	t.Parallel()

	pending := []uuid.UUID{uuid.New(), uuid.New()}
	processing := []uuid.UUID{uuid.New()}
	source := &fakeSource{byStatus: map[domain.ItemStatus][]uuid.UUID{
		domain.ItemStatusPending:    pending,
		domain.ItemStatusProcessing: processing,
		domain.ItemStatusCompleted:  {uuid.New()},
	}}
	processor := &recordingProcessor{}

	before := time.Now().UTC()
	runner := NewTaskRunner(source, processor, DefaultTaskRunnerConfig(), setupTestLogger())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	assert.Eventually(t, func() bool {
		return len(processor.Processed()) == 3
	}, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, append(pending, processing...), processor.Processed())

	source.mu.Lock()
	defer source.mu.Unlock()
	require.GreaterOrEqual(t, len(source.cutoffs), 2)
	assert.True(t, source.cutoffs[0].IsZero(), "pending items are recovered at any age")
	assert.WithinDuration(t, before.Add(-10*time.Minute), source.cutoffs[1], time.Second)
}

func TestTaskRunner_RecoverLeavesFreshProcessingItems(t *testing.T) {
	t.Parallel()

	fresh, stale, pending := uuid.New(), uuid.New(), uuid.New()
	now := time.Now().UTC()
	source := &fakeSource{
		byStatus: map[domain.ItemStatus][]uuid.UUID{
			domain.ItemStatusPending:    {pending},
			domain.ItemStatusProcessing: {fresh, stale},
		},
		updated: map[uuid.UUID]time.Time{
			pending: now,
			fresh:   now.Add(-time.Minute),
			stale:   now.Add(-time.Hour),
		},
	}
	processor := &recordingProcessor{}

	runner := NewTaskRunner(source, processor, DefaultTaskRunnerConfig(), setupTestLogger())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	assert.Eventually(t, func() bool {
		return len(processor.Processed()) == 2
	}, time.Second, 5*time.Millisecond)
	// Give a wrongly queued fresh item the chance to show up.
	time.Sleep(50 * time.Millisecond)
	assert.ElementsMatch(t, []uuid.UUID{pending, stale}, processor.Processed())
}

func TestTaskRunner_StartFailsWhenRecoveryFails(t *testing.T) {
	t.Parallel()

	runner := NewTaskRunner(&fakeSource{err: errors.New("db down")}, &recordingProcessor{}, DefaultTaskRunnerConfig(), setupTestLogger())
	err := runner.Start()
	assert.ErrorContains(t, err, "failed to recover items")
}

func TestTaskRunner_CheckStuck(t *testing.T) {
	t.Parallel()

	stuck := uuid.New()
	source := &fakeSource{byStatus: map[domain.ItemStatus][]uuid.UUID{
		domain.ItemStatusProcessing: {stuck},
	}}
	config := DefaultTaskRunnerConfig()
	config.StuckItemAge = 5 * time.Minute
	runner := NewTaskRunner(source, &recordingProcessor{}, config, setupTestLogger())

	before := time.Now().UTC()
	n, err := runner.CheckStuck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job := <-runner.queue.GetChannel()
	assert.Equal(t, stuck, job.ItemID)

	source.mu.Lock()
	defer source.mu.Unlock()
	require.Len(t, source.cutoffs, 2)
	assert.WithinDuration(t, before.Add(-5*time.Minute), source.cutoffs[1], time.Second)
}

func TestDispatchEventHandler(t *testing.T) {
	t.Parallel()

	config := DefaultTaskRunnerConfig()
	config.QueueSize = 1
	runner := NewTaskRunner(&fakeSource{}, &recordingProcessor{}, config, setupTestLogger())
	handler := NewDispatchEventHandler(runner, setupTestLogger())

	event := events.NewDispatchEvent(uuid.New(), uuid.New(), uuid.New(), 1)
	require.NoError(t, handler.HandleEvent(context.Background(), event))

	job := <-runner.queue.GetChannel()
	assert.Equal(t, event.ItemID, job.ItemID)

	ignored := events.NewDispatchEvent(uuid.New(), uuid.New(), uuid.New(), 1)
	ignored.Type = "other"
	assert.NoError(t, handler.HandleEvent(context.Background(), ignored))
	assert.Equal(t, 0, runner.queue.Len())

	missing := events.NewDispatchEvent(uuid.Nil, uuid.New(), uuid.New(), 1)
	assert.Error(t, handler.HandleEvent(context.Background(), missing))
}
