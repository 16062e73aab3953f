package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// WorkerRepository is the storage side of task processing.
type WorkerRepository interface {
	// ClaimTask locks the next due task in queues for lockDuration.
	// It returns ErrNoTaskToClaim when nothing is due.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)
	CompleteTask(ctx context.Context, taskID uuid.UUID) error
	// FailTask records errMsg and increments the retry count. A task with
	// retries left goes back to pending with a backoff.
	FailTask(ctx context.Context, taskID uuid.UUID, errMsg string) error
	MoveToDLQ(ctx context.Context, taskID uuid.UUID) error
}

// ResultHook observes the outcome of every processed task: completed,
// pending (will be retried) or failed (moved to the DLQ).
type ResultHook func(taskName string, status TaskStatus)

// Worker claims tasks and runs the matching Handler, up to
// maxConcurrentTasks at a time.
type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	queues   []string
	id       uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup

	pullInterval time.Duration
	lockTimeout  time.Duration
	log          *slog.Logger
	hook         ResultHook

	mu       sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}
}

func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	o := &workerOptions{
		queues:             []string{DefaultQueueName},
		pullInterval:       5 * time.Second,
		lockTimeout:        5 * time.Minute,
		maxConcurrentTasks: 1,
		logger:             logger.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	id := uuid.New()
	return &Worker{
		repo:         repo,
		handlers:     make(map[string]Handler),
		queues:       o.queues,
		id:           id,
		sem:          make(chan struct{}, o.maxConcurrentTasks),
		pullInterval: o.pullInterval,
		lockTimeout:  o.lockTimeout,
		log:          o.logger.With(logger.Component("queue"), slog.String("worker_id", id.String())),
		hook:         o.hook,
	}, nil
}

// ID identifies the worker in task locks.
func (w *Worker) ID() uuid.UUID { return w.id }

// RegisterHandlers adds handlers keyed by their Name. A later handler with the
// same name replaces the earlier one.
func (w *Worker) RegisterHandlers(handlers ...Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			w.handlers[h.Name()] = h
		}
	}
}

// Start runs the polling loop in the background until ctx is done or Stop is
// called.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return ErrWorkerStarted
	}
	if len(w.handlers) == 0 {
		return ErrNoHandlers
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.loopDone = make(chan struct{})
	go w.loop(ctx, w.loopDone)

	w.log.Info("worker started",
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))
	return nil
}

// Stop stops claiming and waits for running tasks to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.loopDone
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return ErrWorkerNotStarted
	}
	cancel()
	<-done
	w.wg.Wait()

	w.log.Info("worker stopped")
	return nil
}

// Run returns a function suitable for errgroup.Group.Go.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

// ProcessNext claims and runs a single task synchronously. It reports false
// when no task was due.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	task, err := w.repo.ClaimTask(ctx, w.id, w.queues, w.lockTimeout)
	if errors.Is(err, ErrNoTaskToClaim) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}
	return true, w.process(ctx, task)
}

func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain claims tasks while slots are free and tasks are due.
func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		select {
		case w.sem <- struct{}{}:
		default:
			return
		}

		task, err := w.repo.ClaimTask(ctx, w.id, w.queues, w.lockTimeout)
		if err != nil {
			<-w.sem
			if !errors.Is(err, ErrNoTaskToClaim) && ctx.Err() == nil {
				w.log.ErrorContext(ctx, "failed to claim task", logger.Error(err))
			}
			return
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			if err := w.process(ctx, task); err != nil {
				w.log.ErrorContext(ctx, "task bookkeeping failed",
					slog.String("task_id", task.ID.String()), logger.Error(err))
			}
		}()
	}
}

// process runs the handler and records the outcome. Shutdown does not cancel
// a running handler; it gets lockTimeout to finish.
func (w *Worker) process(ctx context.Context, task *Task) error {
	ctx = context.WithoutCancel(ctx)
	log := w.log.With(
		slog.String("task_id", task.ID.String()),
		slog.String("task_name", task.TaskName),
		slog.String("queue", task.Queue),
	)

	w.mu.Lock()
	h, ok := w.handlers[task.TaskName]
	w.mu.Unlock()
	if !ok {
		log.ErrorContext(ctx, "no handler registered for task")
		return w.bury(ctx, task, ErrHandlerNotFound.Error())
	}

	start := time.Now()
	err := w.invoke(ctx, h, task)
	elapsed := time.Since(start)

	if err == nil {
		if err := w.repo.CompleteTask(ctx, task.ID); err != nil {
			return fmt.Errorf("complete task %s: %w", task.ID, err)
		}
		w.report(task.TaskName, TaskStatusCompleted)
		log.DebugContext(ctx, "task completed", logger.Duration(elapsed))
		return nil
	}

	log.WarnContext(ctx, "task failed",
		slog.Int("retry_count", int(task.RetryCount)),
		slog.Int("max_retries", int(task.MaxRetries)),
		logger.Duration(elapsed),
		logger.Error(err))

	if task.exhausted() {
		return w.bury(ctx, task, err.Error())
	}
	if err := w.repo.FailTask(ctx, task.ID, err.Error()); err != nil {
		return fmt.Errorf("fail task %s: %w", task.ID, err)
	}
	w.report(task.TaskName, TaskStatusPending)
	return nil
}

func (w *Worker) invoke(ctx context.Context, h Handler, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, w.lockTimeout)
	defer cancel()
	return h.Handle(ctx, task.Payload)
}

// bury records the final error and moves the task to the DLQ.
func (w *Worker) bury(ctx context.Context, task *Task, errMsg string) error {
	if err := w.repo.FailTask(ctx, task.ID, errMsg); err != nil {
		return fmt.Errorf("fail task %s: %w", task.ID, err)
	}
	if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
		return fmt.Errorf("move task %s to DLQ: %w", task.ID, err)
	}
	w.report(task.TaskName, TaskStatusFailed)
	w.log.WarnContext(ctx, "task moved to dead letter queue",
		slog.String("task_id", task.ID.String()), slog.String("task_name", task.TaskName))
	return nil
}

func (w *Worker) report(name string, status TaskStatus) {
	if w.hook != nil {
		w.hook(name, status)
	}
}
