package tenant

import (
	"log/slog"
	"net/http"
	"time"
)

// ErrorHandler renders a resolution failure.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

type config struct {
	cache        Cache
	cacheTTL     time.Duration
	errorHandler ErrorHandler
	logger       *slog.Logger
}

// Option configures the middleware.
type Option func(*config)

func WithCache(cache Cache) Option {
	return func(c *config) {
		if cache != nil {
			c.cache = cache
		}
	}
}

// WithCacheTTL sets how long a resolved tenant is reused. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.cacheTTL = ttl
	}
}

func WithErrorHandler(h ErrorHandler) Option {
	return func(c *config) {
		if h != nil {
			c.errorHandler = h
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
