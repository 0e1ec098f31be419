package taskqueue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupQueueTestDB(t *testing.T) (*TaskQueue, *pgxpool.Pool, func()) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start postgres container")

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	config, err := pgxpool.ParseConfig(connStr)
	require.NoError(t, err)

	pool, err := pgxpool.NewWithConfig(ctx, config)
	require.NoError(t, err, "Failed to create connection pool")

	_, err = pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS task_queue (
		id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
		task_type TEXT NOT NULL,
		payload JSONB NOT NULL DEFAULT '{}',
		result JSONB,
		priority INT NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		scheduled_for TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		failed_at TIMESTAMPTZ,
		worker_id TEXT,
		retry_count INT NOT NULL DEFAULT 0,
		max_retries INT NOT NULL DEFAULT 3,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	require.NoError(t, err, "Failed to create task_queue table")

	cleanup := func() {
		pool.Close()
		testcontainers.TerminateContainer(container)
	}

	return New(pool), pool, cleanup
}

func TestTaskQueueLifecycle(t *testing.T) {
	queue, _, cleanup := setupQueueTestDB(t)
	defer cleanup()
	ctx := context.Background()

	t.Run("ScheduleAndClaim", func(t *testing.T) {
		id, err := queue.ScheduleTask(ctx, ScheduleTaskInput{
			TaskType: TaskTypeScoreRecompute,
			Payload:  map[string]int64{"deal_id": 42},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		claimed, err := queue.ClaimTasks(ctx, ClaimTasksInput{
			WorkerID:  "worker-1",
			TaskTypes: []string{TaskTypeScoreRecompute},
			MaxTasks:  5,
		})
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, id, claimed[0].ID)

		var payload struct {
			DealID int64 `json:"deal_id"`
		}
		require.NoError(t, json.Unmarshal(claimed[0].Payload, &payload))
		assert.Equal(t, int64(42), payload.DealID)

		// A second claim finds nothing.
		claimed, err = queue.ClaimTasks(ctx, ClaimTasksInput{
			WorkerID:  "worker-2",
			TaskTypes: []string{TaskTypeScoreRecompute},
			MaxTasks:  5,
		})
		require.NoError(t, err)
		assert.Empty(t, claimed)

		require.NoError(t, queue.MarkProcessing(ctx, id))
		require.NoError(t, queue.CompleteTask(ctx, id, map[string]float64{"score": 7.5}))

		task, err := queue.GetTask(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, task.Status)
		assert.NotNil(t, task.CompletedAt)
	})

	t.Run("FutureTaskNotClaimable", func(t *testing.T) {
		future := time.Now().Add(time.Hour)
		_, err := queue.ScheduleTask(ctx, ScheduleTaskInput{
			TaskType:    TaskTypeCleanup,
			Payload:     map[string]string{},
			ScheduledAt: &future,
		})
		require.NoError(t, err)

		claimed, err := queue.ClaimTasks(ctx, ClaimTasksInput{
			WorkerID:  "worker-1",
			TaskTypes: []string{TaskTypeCleanup},
			MaxTasks:  5,
		})
		require.NoError(t, err)
		assert.Empty(t, claimed)
	})

	t.Run("PriorityOrder", func(t *testing.T) {
		low, err := queue.ScheduleTask(ctx, ScheduleTaskInput{
			TaskType: TaskTypeCacheWarmup,
			Payload:  map[string]string{"kind": "featured"},
			Priority: 1,
		})
		require.NoError(t, err)
		high, err := queue.ScheduleTask(ctx, ScheduleTaskInput{
			TaskType: TaskTypeCacheWarmup,
			Payload:  map[string]string{"kind": "nearby"},
			Priority: 10,
		})
		require.NoError(t, err)

		claimed, err := queue.ClaimTasks(ctx, ClaimTasksInput{
			WorkerID:  "worker-1",
			TaskTypes: []string{TaskTypeCacheWarmup},
			MaxTasks:  1,
		})
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, high, claimed[0].ID)

		require.NoError(t, queue.CancelTask(ctx, low))
		require.NoError(t, queue.CompleteTask(ctx, high, nil))
	})

	t.Run("FailWithRetryGoesBackToPending", func(t *testing.T) {
		id, err := queue.ScheduleTask(ctx, ScheduleTaskInput{
			TaskType:   TaskTypeScoreRecompute,
			Payload:    map[string]int64{"deal_id": 7},
			MaxRetries: 3,
		})
		require.NoError(t, err)

		claimed, err := queue.ClaimTasks(ctx, ClaimTasksInput{
			WorkerID:  "worker-1",
			TaskTypes: []string{TaskTypeScoreRecompute},
			MaxTasks:  1,
		})
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		require.NoError(t, queue.FailTask(ctx, id, "transient error", true))

		task, err := queue.GetTask(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, task.Status)
		assert.Equal(t, 1, task.RetryCount)
		// Backoff pushes the retry into the future.
		require.NotNil(t, task.ScheduledFor)
		assert.True(t, task.ScheduledFor.After(time.Now()))
	})

	t.Run("FailWithoutRetry", func(t *testing.T) {
		id, err := queue.ScheduleTask(ctx, ScheduleTaskInput{
			TaskType: TaskTypeScoreRecompute,
			Payload:  map[string]int64{"deal_id": 8},
		})
		require.NoError(t, err)

		require.NoError(t, queue.FailTask(ctx, id, "permanent error", false))

		task, err := queue.GetTask(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, task.Status)
		require.NotNil(t, task.ErrorMessage)
		assert.Equal(t, "permanent error", *task.ErrorMessage)
	})
}

func TestRecoverOrphanedTasks(t *testing.T) {
	queue, pool, cleanup := setupQueueTestDB(t)
	defer cleanup()
	ctx := context.Background()

	id, err := queue.ScheduleTask(ctx, ScheduleTaskInput{
		TaskType: TaskTypeScoreRecompute,
		Payload:  map[string]int64{"deal_id": 1},
	})
	require.NoError(t, err)

	claimed, err := queue.ClaimTasks(ctx, ClaimTasksInput{
		WorkerID:  "dead-worker",
		TaskTypes: []string{TaskTypeScoreRecompute},
		MaxTasks:  1,
	})
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// Backdate started_at so the claim looks abandoned.
	_, err = pool.Exec(ctx, `UPDATE task_queue SET started_at = NOW() - INTERVAL '1 hour' WHERE id = $1`, id)
	require.NoError(t, err)

	recovered, failed, err := queue.RecoverOrphanedTasks(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
	assert.Zero(t, failed)

	task, err := queue.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, task.Status)
	assert.Nil(t, task.WorkerID)
}

func TestCleanupOldTasks(t *testing.T) {
	queue, pool, cleanup := setupQueueTestDB(t)
	defer cleanup()
	ctx := context.Background()

	id, err := queue.ScheduleTask(ctx, ScheduleTaskInput{
		TaskType: TaskTypeCleanup,
		Payload:  map[string]string{},
	})
	require.NoError(t, err)
	require.NoError(t, queue.CompleteTask(ctx, id, nil))

	_, err = pool.Exec(ctx, `UPDATE task_queue SET updated_at = NOW() - INTERVAL '30 days' WHERE id = $1`, id)
	require.NoError(t, err)

	deleted, err := queue.CleanupOldTasks(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = queue.GetTask(ctx, id)
	assert.Error(t, err)
}
