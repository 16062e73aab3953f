package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository persists new tasks.
type EnqueuerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
}

type Enqueuer struct {
	repo            EnqueuerRepository
	defaultQueue    string
	defaultPriority Priority
	maxRetries      int8
	now             func() time.Time
}

func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	e := &Enqueuer{
		repo:            repo,
		defaultQueue:    DefaultQueueName,
		defaultPriority: PriorityDefault,
		maxRetries:      3,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Enqueue stores payload as a pending task. The task name defaults to the
// qualified type name of payload.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) error {
	if payload == nil {
		return ErrPayloadNil
	}

	o := enqueueOptions{
		queue:      e.defaultQueue,
		priority:   e.defaultPriority,
		maxRetries: e.maxRetries,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.priority.Valid() {
		return ErrInvalidPriority
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %T payload: %w", payload, err)
	}
	name := o.taskName
	if name == "" {
		name = taskName(payload)
	}

	now := e.now()
	scheduled := now.Add(o.delay)
	if o.scheduledAt != nil {
		scheduled = *o.scheduledAt
	}

	task := &Task{
		ID:          uuid.New(),
		Queue:       o.queue,
		TaskName:    name,
		Payload:     raw,
		Status:      TaskStatusPending,
		Priority:    o.priority,
		MaxRetries:  o.maxRetries,
		ScheduledAt: scheduled,
		CreatedAt:   now,
	}
	if err := e.repo.CreateTask(ctx, task); err != nil {
		return errors.Join(ErrTaskCreate, fmt.Errorf("task %q in queue %q: %w", name, o.queue, err))
	}
	return nil
}
