package queue

import (
	"log/slog"
	"time"
)

type WorkerOption func(*workerOptions)

type workerOptions struct {
	queues             []string
	pullInterval       time.Duration
	lockTimeout        time.Duration
	maxConcurrentTasks int
	logger             *slog.Logger
	hook               ResultHook
}

func WithQueues(queues ...string) WorkerOption {
	return func(o *workerOptions) {
		if len(queues) > 0 {
			o.queues = queues
		}
	}
}

func WithPullInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pullInterval = d
		}
	}
}

// WithLockTimeout bounds a single handler run. An expired lock makes the task
// claimable again.
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

func WithMaxConcurrentTasks(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.maxConcurrentTasks = n
		}
	}
}

func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithResultHook(h ResultHook) WorkerOption {
	return func(o *workerOptions) {
		o.hook = h
	}
}

// WithConfig applies the env-driven settings.
func WithConfig(cfg Config) WorkerOption {
	return func(o *workerOptions) {
		if cfg.Name != "" {
			o.queues = []string{cfg.Name}
		}
		if cfg.PollInterval > 0 {
			o.pullInterval = cfg.PollInterval
		}
		if cfg.LockTimeout > 0 {
			o.lockTimeout = cfg.LockTimeout
		}
		if cfg.MaxConcurrentTasks > 0 {
			o.maxConcurrentTasks = cfg.MaxConcurrentTasks
		}
	}
}
