package tenant

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// Middleware resolves the tenant of every request, rejecting the request
// through the configured ErrorHandler when it cannot.
func Middleware(resolver Resolver, provider Provider, opts ...Option) func(http.Handler) http.Handler {
	if resolver == nil || provider == nil {
		panic("tenant: resolver and provider are required")
	}

	cfg := &config{
		cache:        NewInMemoryCache(DefaultCacheSize),
		cacheTTL:     time.Minute,
		errorHandler: defaultErrorHandler,
		logger:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolver.Resolve(r)
			if err != nil {
				cfg.errorHandler(w, r, err)
				return
			}

			t, ok := cfg.cache.Get(id)
			if !ok {
				t, err = provider.Lookup(r.Context(), id)
				if err != nil {
					if !errors.Is(err, ErrTenantNotFound) {
						cfg.logger.ErrorContext(r.Context(), "tenant lookup failed",
							logger.TenantID(id.String()), logger.Error(err))
					}
					cfg.errorHandler(w, r, err)
					return
				}
				if cfg.cacheTTL > 0 {
					cfg.cache.Set(id, t, cfg.cacheTTL)
				}
			}

			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), t)))
		})
	}
}

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	switch {
	case errors.Is(err, ErrMissingTenant):
		http.Error(w, "missing tenant", http.StatusUnauthorized)
	case errors.Is(err, ErrInvalidIdentifier):
		http.Error(w, "invalid tenant identifier", http.StatusBadRequest)
	case errors.Is(err, ErrTenantNotFound):
		http.Error(w, "tenant not found", http.StatusNotFound)
	default:
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
