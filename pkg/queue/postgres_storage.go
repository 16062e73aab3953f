package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingkit/pkg/pg"
)

// PostgresStorage keeps tasks in the queue_tasks table. Concurrent workers
// never claim the same row: the claim locks it with FOR UPDATE SKIP LOCKED.
type PostgresStorage struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	if pool == nil {
		panic("queue: postgres pool is required")
	}
	return &PostgresStorage{pool: pool, now: time.Now}
}

const taskColumns = `id, queue, task_name, payload, status, priority, retry_count, max_retries,
	scheduled_at, locked_until, locked_by, processed_at, error, created_at`

func (s *PostgresStorage) CreateTask(ctx context.Context, t *Task) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO queue_tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		t.ID, t.Queue, t.TaskName, t.Payload, string(t.Status), int16(t.Priority),
		int16(t.RetryCount), int16(t.MaxRetries), t.ScheduledAt, t.LockedUntil,
		t.LockedBy, t.ProcessedAt, t.Error, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// ClaimTask also picks up processing rows whose lock expired, which recovers
// tasks from crashed workers.
func (s *PostgresStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	now := s.now()
	row := s.pool.QueryRow(ctx, `
		UPDATE queue_tasks SET status = 'processing', locked_until = $1, locked_by = $2
		WHERE id = (
			SELECT id FROM queue_tasks
			WHERE queue = ANY($3::text[]) AND scheduled_at <= $4
			  AND (status = 'pending' OR (status = 'processing' AND locked_until < $4))
			ORDER BY priority DESC, scheduled_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns,
		now.Add(lockDuration), workerID, queues, now,
	)
	t, err := scanTask(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNoTaskToClaim
		}
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return t, nil
}

func (s *PostgresStorage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue_tasks SET status = 'completed', processed_at = $2, locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`,
		taskID, s.now(),
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotClaimed
	}
	return nil
}

func (s *PostgresStorage) FailTask(ctx context.Context, taskID uuid.UUID, errMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue_tasks SET
			retry_count = retry_count + 1,
			error = $2,
			locked_until = NULL,
			locked_by = NULL,
			status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
			scheduled_at = CASE WHEN retry_count + 1 >= max_retries THEN scheduled_at
				ELSE $3::timestamptz + make_interval(secs => $4::float8 * (retry_count + 1)) END
		WHERE id = $1 AND status = 'processing'`,
		taskID, errMsg, s.now(), retryBackoff(1).Seconds(),
	)
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotClaimed
	}
	return nil
}

// MoveToDLQ deletes the task and writes its dead letter row in one transaction.
func (s *PostgresStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		t, err := scanTask(tx.QueryRow(ctx, `DELETE FROM queue_tasks WHERE id = $1 RETURNING `+taskColumns, taskID))
		if err != nil {
			if pg.IsNotFoundError(err) {
				return ErrTaskNotFound
			}
			return fmt.Errorf("delete task: %w", err)
		}
		errMsg := ""
		if t.Error != nil {
			errMsg = *t.Error
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO queue_tasks_dlq (id, task_id, queue, task_name, payload, priority, error, retry_count, failed_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.New(), t.ID, t.Queue, t.TaskName, t.Payload, int16(t.Priority),
			errMsg, int16(t.RetryCount), s.now(), t.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert dead task: %w", err)
		}
		return nil
	})
}

// DeadTasks lists the most recent dead letters, newest first.
func (s *PostgresStorage) DeadTasks(ctx context.Context, limit int) ([]DeadTask, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, task_id, queue, task_name, payload, priority, error, retry_count, failed_at, created_at
		FROM queue_tasks_dlq ORDER BY failed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query dead tasks: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DeadTask, error) {
		var (
			d             DeadTask
			prio, retries int16
		)
		err := row.Scan(&d.ID, &d.TaskID, &d.Queue, &d.TaskName, &d.Payload, &prio,
			&d.Error, &retries, &d.FailedAt, &d.CreatedAt)
		d.Priority, d.RetryCount = Priority(prio), int8(retries)
		return d, err
	})
}

func scanTask(row pgx.Row) (*Task, error) {
	var (
		t                      Task
		status                 string
		prio, retries, maxRetr int16
	)
	err := row.Scan(&t.ID, &t.Queue, &t.TaskName, &t.Payload, &status, &prio, &retries, &maxRetr,
		&t.ScheduledAt, &t.LockedUntil, &t.LockedBy, &t.ProcessedAt, &t.Error, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = TaskStatus(status)
	t.Priority, t.RetryCount, t.MaxRetries = Priority(prio), int8(retries), int8(maxRetr)
	return &t, nil
}
