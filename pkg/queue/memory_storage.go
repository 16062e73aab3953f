package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements both repository interfaces in process.
// Expired locks are reclaimed lazily by ClaimTask.
type MemoryStorage struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*Task
	dead  []DeadTask
	now   func() time.Time
}

type MemoryOption func(*MemoryStorage)

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(ms *MemoryStorage) {
		if now != nil {
			ms.now = now
		}
	}
}

func NewMemoryStorage(opts ...MemoryOption) *MemoryStorage {
	ms := &MemoryStorage{
		tasks: make(map[uuid.UUID]*Task),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(ms)
	}
	return ms
}

func (ms *MemoryStorage) CreateTask(_ context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.tasks[task.ID]; ok {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	c := *task
	ms.tasks[task.ID] = &c
	return nil
}

// ClaimTask picks the highest priority due task, oldest schedule first.
func (ms *MemoryStorage) ClaimTask(_ context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	var best *Task
	for _, t := range ms.tasks {
		if !slices.Contains(queues, t.Queue) || t.ScheduledAt.After(now) || !claimable(t, now) {
			continue
		}
		if best == nil || before(t, best) {
			best = t
		}
	}
	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	until := now.Add(lockDuration)
	best.Status = TaskStatusProcessing
	best.LockedUntil = &until
	best.LockedBy = &workerID

	c := *best
	return &c, nil
}

func claimable(t *Task, now time.Time) bool {
	switch t.Status {
	case TaskStatusPending:
		return true
	case TaskStatusProcessing:
		return t.LockedUntil != nil && t.LockedUntil.Before(now)
	}
	return false
}

func before(a, b *Task) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.ScheduledAt.Before(b.ScheduledAt)
}

func (ms *MemoryStorage) CompleteTask(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.processing(taskID)
	if err != nil {
		return err
	}
	now := ms.now()
	t.Status = TaskStatusCompleted
	t.ProcessedAt = &now
	t.LockedUntil, t.LockedBy = nil, nil
	return nil
}

func (ms *MemoryStorage) FailTask(_ context.Context, taskID uuid.UUID, errMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.processing(taskID)
	if err != nil {
		return err
	}
	t.RetryCount++
	t.Error = &errMsg
	t.LockedUntil, t.LockedBy = nil, nil
	if t.RetryCount >= t.MaxRetries {
		t.Status = TaskStatusFailed
		return nil
	}
	t.Status = TaskStatusPending
	t.ScheduledAt = ms.now().Add(retryBackoff(t.RetryCount))
	return nil
}

func (ms *MemoryStorage) MoveToDLQ(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, ok := ms.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	now := ms.now()
	d := DeadTask{
		ID:         uuid.New(),
		TaskID:     t.ID,
		Queue:      t.Queue,
		TaskName:   t.TaskName,
		Payload:    t.Payload,
		Priority:   t.Priority,
		RetryCount: t.RetryCount,
		FailedAt:   now,
		CreatedAt:  t.CreatedAt,
	}
	if t.Error != nil {
		d.Error = *t.Error
	}
	ms.dead = append(ms.dead, d)
	delete(ms.tasks, taskID)
	return nil
}

// Task returns a copy of a live task.
func (ms *MemoryStorage) Task(taskID uuid.UUID) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, ok := ms.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	c := *t
	return &c, nil
}

// Tasks lists live tasks ordered by creation time.
func (ms *MemoryStorage) Tasks() []Task {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	out := make([]Task, 0, len(ms.tasks))
	for _, t := range ms.tasks {
		out = append(out, *t)
	}
	slices.SortFunc(out, func(a, b Task) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// DeadTasks lists the dead letter queue in the order tasks were buried.
func (ms *MemoryStorage) DeadTasks() []DeadTask {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return slices.Clone(ms.dead)
}

func (ms *MemoryStorage) processing(taskID uuid.UUID) (*Task, error) {
	t, ok := ms.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if t.Status != TaskStatusProcessing {
		return nil, ErrTaskNotClaimed
	}
	return t, nil
}
