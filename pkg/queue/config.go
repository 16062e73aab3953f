package queue

import "time"

type Config struct {
	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"2s"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	MaxConcurrentTasks int           `env:"QUEUE_MAX_CONCURRENT_TASKS" envDefault:"4"`
	MaxRetries         int8          `env:"QUEUE_MAX_RETRIES" envDefault:"5"`
	// Name is the queue billing notifications are written to and read from.
	Name string `env:"QUEUE_NAME" envDefault:"notifications"`
}
