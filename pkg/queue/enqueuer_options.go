package queue

import "time"

type EnqueuerOption func(*Enqueuer)

func WithDefaultQueue(queue string) EnqueuerOption {
	return func(e *Enqueuer) {
		if queue != "" {
			e.defaultQueue = queue
		}
	}
}

func WithDefaultPriority(priority Priority) EnqueuerOption {
	return func(e *Enqueuer) {
		if priority.Valid() {
			e.defaultPriority = priority
		}
	}
}

// WithDefaultMaxRetries sets the attempt budget for tasks that do not set
// their own.
func WithDefaultMaxRetries(n int8) EnqueuerOption {
	return func(e *Enqueuer) {
		if n > 0 && n <= maxRetriesCap {
			e.maxRetries = n
		}
	}
}

func WithEnqueuerClock(now func() time.Time) EnqueuerOption {
	return func(e *Enqueuer) {
		if now != nil {
			e.now = now
		}
	}
}

// EnqueueOption configures a single Enqueue call.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	queue       string
	priority    Priority
	maxRetries  int8
	delay       time.Duration
	scheduledAt *time.Time
	taskName    string
}

const maxRetriesCap = 10

func WithQueue(queue string) EnqueueOption {
	return func(o *enqueueOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

func WithPriority(priority Priority) EnqueueOption {
	return func(o *enqueueOptions) {
		o.priority = priority
	}
}

// WithMaxRetries sets the number of attempts, 1 to 10.
func WithMaxRetries(n int8) EnqueueOption {
	return func(o *enqueueOptions) {
		if n > 0 && n <= maxRetriesCap {
			o.maxRetries = n
		}
	}
}

func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

func WithScheduledAt(at time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.scheduledAt = &at
	}
}

func WithTaskName(name string) EnqueueOption {
	return func(o *enqueueOptions) {
		if name != "" {
			o.taskName = name
		}
	}
}
