package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TaskQueue is a Postgres-backed task queue. Claiming uses
// FOR UPDATE SKIP LOCKED so concurrent workers never grab the same task.
type TaskQueue struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *TaskQueue {
	return &TaskQueue{pool: pool}
}

func (q *TaskQueue) GetPool() *pgxpool.Pool {
	return q.pool
}

type ScheduleTaskInput struct {
	TaskType    string
	Payload     interface{}
	Priority    int
	ScheduledAt *time.Time
	MaxRetries  int
}

// ScheduleTask enqueues a task, returning its id. A nil ScheduledAt means
// run as soon as a worker polls.
func (q *TaskQueue) ScheduleTask(ctx context.Context, input ScheduleTaskInput) (string, error) {
	payload, err := json.Marshal(input.Payload)
	if err != nil {
		return "", fmt.Errorf("marshal task payload: %w", err)
	}

	maxRetries := 3
	if input.MaxRetries > 0 {
		maxRetries = input.MaxRetries
	}

	scheduledAt := time.Now()
	if input.ScheduledAt != nil {
		scheduledAt = *input.ScheduledAt
	}

	var id string
	err = q.pool.QueryRow(ctx, `
		INSERT INTO task_queue (task_type, payload, priority, scheduled_for, max_retries)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, input.TaskType, payload, input.Priority, scheduledAt, maxRetries).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("schedule %s task: %w", input.TaskType, err)
	}
	return id, nil
}

type ClaimTasksInput struct {
	WorkerID  string
	TaskTypes []string
	MaxTasks  int
}

// ClaimTasks atomically claims up to MaxTasks due tasks of the given types.
func (q *TaskQueue) ClaimTasks(ctx context.Context, input ClaimTasksInput) ([]ClaimedTask, error) {
	rows, err := q.pool.Query(ctx, `
		UPDATE task_queue
		SET status = 'claimed', worker_id = $1, started_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM task_queue
			WHERE status = 'pending'
			  AND task_type = ANY($2)
			  AND scheduled_for <= NOW()
			ORDER BY priority DESC, scheduled_for
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, task_type, payload
	`, input.WorkerID, input.TaskTypes, input.MaxTasks)
	if err != nil {
		return nil, fmt.Errorf("claim tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]ClaimedTask, 0)
	for rows.Next() {
		var task ClaimedTask
		if err := rows.Scan(&task.ID, &task.TaskType, &task.Payload); err != nil {
			return nil, fmt.Errorf("scan claimed task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read claimed tasks: %w", err)
	}
	return tasks, nil
}

// MarkProcessing transitions a claimed task to processing.
func (q *TaskQueue) MarkProcessing(ctx context.Context, taskID string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE task_queue
		SET status = 'processing', updated_at = NOW()
		WHERE id = $1
	`, taskID)
	return err
}

// CompleteTask marks a task completed, recording an optional result.
func (q *TaskQueue) CompleteTask(ctx context.Context, taskID string, result interface{}) error {
	var resultJSON []byte
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal task result: %w", err)
		}
		resultJSON = data
	}

	_, err := q.pool.Exec(ctx, `
		UPDATE task_queue
		SET status = 'completed', completed_at = NOW(), updated_at = NOW(), result = $2
		WHERE id = $1
	`, taskID, resultJSON)
	return err
}

// FailTask marks a task failed. When shouldRetry is true and retries remain,
// it goes back to pending with a linear backoff.
func (q *TaskQueue) FailTask(ctx context.Context, taskID, errorMessage string, shouldRetry bool) error {
	if shouldRetry {
		_, err := q.pool.Exec(ctx, `
			UPDATE task_queue
			SET status = CASE WHEN retry_count + 1 < max_retries THEN 'pending' ELSE 'failed' END,
			    retry_count = retry_count + 1,
			    scheduled_for = NOW() + (retry_count + 1) * INTERVAL '30 seconds',
			    failed_at = CASE WHEN retry_count + 1 < max_retries THEN failed_at ELSE NOW() END,
			    error_message = $2,
			    worker_id = NULL,
			    updated_at = NOW()
			WHERE id = $1
		`, taskID, errorMessage)
		return err
	}

	_, err := q.pool.Exec(ctx, `
		UPDATE task_queue
		SET status = 'failed', failed_at = NOW(), error_message = $2, updated_at = NOW()
		WHERE id = $1
	`, taskID, errorMessage)
	return err
}

// CleanupOldTasks deletes completed and failed tasks older than daysToKeep.
func (q *TaskQueue) CleanupOldTasks(ctx context.Context, daysToKeep int) (int, error) {
	tag, err := q.pool.Exec(ctx, `
		DELETE FROM task_queue
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND updated_at < NOW() - $1 * INTERVAL '1 day'
	`, daysToKeep)
	if err != nil {
		return 0, fmt.Errorf("cleanup old tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CancelTask cancels a task that has not started processing.
func (q *TaskQueue) CancelTask(ctx context.Context, taskID string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE task_queue
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'claimed')
	`, taskID)
	return err
}

// GetTask returns a task by id.
func (q *TaskQueue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	err := q.pool.QueryRow(ctx, `
		SELECT id, task_type, payload, priority, status,
		       scheduled_for, started_at, completed_at, failed_at,
		       worker_id, retry_count, max_retries, error_message,
		       created_at, updated_at
		FROM task_queue
		WHERE id = $1
	`, taskID).Scan(
		&task.ID, &task.TaskType, &task.Payload, &task.Priority, &task.Status,
		&task.ScheduledFor, &task.StartedAt, &task.CompletedAt, &task.FailedAt,
		&task.WorkerID, &task.RetryCount, &task.MaxRetries, &task.ErrorMessage,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// RecoverOrphanedTasks returns claimed or processing tasks whose worker went
// silent for longer than staleAfter back to pending, failing those out of
// retries. Returns (recovered, failed).
func (q *TaskQueue) RecoverOrphanedTasks(ctx context.Context, staleAfter time.Duration) (int, int, error) {
	var recovered, failed int
	err := q.pool.QueryRow(ctx, `
		WITH orphaned AS (
			UPDATE task_queue
			SET status = CASE WHEN retry_count < max_retries THEN 'pending' ELSE 'failed' END,
			    retry_count = retry_count + 1,
			    worker_id = NULL,
			    failed_at = CASE WHEN retry_count < max_retries THEN failed_at ELSE NOW() END,
			    error_message = COALESCE(error_message, 'worker timed out'),
			    updated_at = NOW()
			WHERE status IN ('claimed', 'processing')
			  AND started_at < NOW() - make_interval(secs => $1)
			RETURNING status
		)
		SELECT COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'failed')
		FROM orphaned
	`, staleAfter.Seconds()).Scan(&recovered, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("recover orphaned tasks: %w", err)
	}
	return recovered, failed, nil
}
