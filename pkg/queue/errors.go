package queue

import "errors"

var (
	ErrRepositoryNil   = errors.New("queue: repository cannot be nil")
	ErrPayloadNil      = errors.New("queue: payload cannot be nil")
	ErrInvalidPriority = errors.New("queue: priority must be between 0 and 100")
	ErrTaskCreate      = errors.New("queue: failed to create task")

	ErrNoTaskToClaim    = errors.New("queue: no task to claim")
	ErrTaskNotFound     = errors.New("queue: task not found")
	ErrTaskNotClaimed   = errors.New("queue: task is not being processed")
	ErrHandlerNotFound  = errors.New("queue: no handler registered for task")
	ErrNoHandlers       = errors.New("queue: no task handlers registered")
	ErrWorkerStarted    = errors.New("queue: worker already started")
	ErrWorkerNotStarted = errors.New("queue: worker not started")
)
