package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkerPool(t *testing.T) {
	logger := setupTestLogger()
	queue := NewTaskQueue(10, logger)

	pool := NewWorkerPool(queue, &recordingProcessor{}, WorkerPoolConfig{WorkerCount: 5}, logger)
	assert.Equal(t, 5, pool.workerCount)
	assert.Nil(t, pool.errorHandler)

	// Invalid worker counts default to 1
	pool = NewWorkerPool(queue, &recordingProcessor{}, WorkerPoolConfig{WorkerCount: 0}, logger)
	assert.Equal(t, 1, pool.workerCount)
	pool = NewWorkerPool(queue, &recordingProcessor{}, WorkerPoolConfig{WorkerCount: -5}, logger)
	assert.Equal(t, 1, pool.workerCount)
}

func TestWorkerPool_ProcessesJobs(t *testing.T) {
	t.Parallel()

	logger := setupTestLogger()
	queue := NewTaskQueue(10, logger)
	processor := &recordingProcessor{}
	pool := NewWorkerPool(queue, processor, DefaultWorkerPoolConfig(), logger)
	pool.Start()
	defer pool.Stop()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, queue.Enqueue(Job{ItemID: id}))
	}

	assert.Eventually(t, func() bool {
		return len(processor.Processed()) == len(ids)
	}, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, ids, processor.Processed())
}

func TestWorkerPool_ErrorsAndPanics(t *testing.T) {
	t.Parallel()

	logger := setupTestLogger()
	queue := NewTaskQueue(10, logger)

	failing := uuid.New()
	panicking := uuid.New()
	pool := NewWorkerPool(queue, ItemProcessorFunc(func(ctx context.Context, itemID uuid.UUID) error {
		switch itemID {
		case failing:
			return errors.New("boom")
		case panicking:
			panic("unexpected nil")
		}
		return nil
	}), WorkerPoolConfig{WorkerCount: 1}, logger)

	var (
		mu     sync.Mutex
		failed = map[uuid.UUID]error{}
	)
	pool.SetErrorHandler(func(job Job, err error) {
		mu.Lock()
		failed[job.ItemID] = err
		mu.Unlock()
	})
	pool.Start()
	defer pool.Stop()

	require.NoError(t, queue.Enqueue(Job{ItemID: failing}))
	require.NoError(t, queue.Enqueue(Job{ItemID: panicking}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failed) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.EqualError(t, failed[failing], "boom")
	assert.Contains(t, failed[panicking].Error(), "panic processing item")
}

func TestWorkerPool_StopCancelsInFlight(t *testing.T) {
	t.Parallel()

	logger := setupTestLogger()
	queue := NewTaskQueue(1, logger)
	started := make(chan struct{})
	var cancelled error

	pool := NewWorkerPool(queue, ItemProcessorFunc(func(ctx context.Context, itemID uuid.UUID) error {
		close(started)
		<-ctx.Done()
		cancelled = ctx.Err()
		return cancelled
	}), WorkerPoolConfig{WorkerCount: 1}, logger)
	pool.Start()

	require.NoError(t, queue.Enqueue(Job{ItemID: uuid.New()}))
	<-started
	pool.Stop()

	assert.ErrorIs(t, cancelled, context.Canceled)
}
