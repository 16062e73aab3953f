//go:build integration

package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dmitrymomot/billingkit/migrations"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/queue"
)

func setupPostgresStorage(t *testing.T) *queue.PostgresStorage {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("billing"),
		postgres.WithUsername("billing"),
		postgres.WithPassword("billing"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := pg.Config{ConnectionString: dsn, MaxConns: 4, MinConns: 1, RetryAttempts: 3, RetryInterval: time.Second, MigrationsTable: "schema_migrations"}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, migrations.FS, cfg, logger.Discard()))
	return queue.NewPostgresStorage(pool)
}

func TestPostgresStorage(t *testing.T) {
	storage := setupPostgresStorage(t)
	ctx := context.Background()

	enq, err := queue.NewEnqueuer(storage, queue.WithDefaultQueue("notifications"))
	require.NoError(t, err)
	require.NoError(t, enq.Enqueue(ctx, invoiceEmail{TenantID: "t1"}, queue.WithMaxRetries(2)))
	require.NoError(t, enq.Enqueue(ctx, invoiceEmail{TenantID: "t2"}, queue.WithPriority(queue.PriorityHigh)))

	queues := []string{"notifications"}
	first, err := storage.ClaimTask(ctx, uuid.New(), queues, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, queue.PriorityHigh, first.Priority)
	assert.Equal(t, queue.TaskStatusProcessing, first.Status)
	require.NoError(t, storage.CompleteTask(ctx, first.ID))
	require.ErrorIs(t, storage.CompleteTask(ctx, first.ID), queue.ErrTaskNotClaimed)

	second, err := storage.ClaimTask(ctx, uuid.New(), queues, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int8(2), second.MaxRetries)

	_, err = storage.ClaimTask(ctx, uuid.New(), queues, time.Minute)
	require.ErrorIs(t, err, queue.ErrNoTaskToClaim)

	require.NoError(t, storage.FailTask(ctx, second.ID, "smtp down"))
	_, err = storage.ClaimTask(ctx, uuid.New(), queues, time.Minute)
	require.ErrorIs(t, err, queue.ErrNoTaskToClaim, "backoff pending")

	require.NoError(t, storage.MoveToDLQ(ctx, second.ID))
	dead, err := storage.DeadTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, second.ID, dead[0].TaskID)
	assert.Equal(t, "smtp down", dead[0].Error)
}
