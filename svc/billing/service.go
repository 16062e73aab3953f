package billing

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/gateway"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/refund"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// Refunder decides and issues the refund for a cancellation.
// *refund.Calculator is the production implementation.
type Refunder interface {
	Calculate(ctx context.Context, t *subscription.Tenant) (refund.Result, error)
}

// Service owns the checkout, cancellation and reconciliation flows.
type Service struct {
	store    *subscription.Store
	gateway  gateway.Gateway
	catalog  *subscription.Catalog
	refunder Refunder
	notifier Notifier
	metrics  *Metrics
	log      *slog.Logger
	now      func() time.Time
	baseURL  string
	timeout  time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides time.Now. It also drives the default refund calculator.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRefunder replaces the default refund calculator built on the gateway.
func WithRefunder(r Refunder) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.refunder = r
		}
	}
}

// WithBaseURL sets the public URL used for checkout redirects.
func WithBaseURL(u string) ServiceOption {
	return func(s *Service) {
		if u != "" {
			s.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithProviderTimeout bounds each operation's provider round trips.
// Zero disables the bound.
func WithProviderTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.timeout = d
	}
}

// WithConfig applies the environment configuration.
func WithConfig(cfg Config) ServiceOption {
	return func(s *Service) {
		WithBaseURL(cfg.BaseURL)(s)
		WithProviderTimeout(cfg.ProviderTimeout)(s)
	}
}

// NewService panics if a required dependency is nil.
func NewService(store *subscription.Store, gw gateway.Gateway, catalog *subscription.Catalog, opts ...ServiceOption) *Service {
	if store == nil {
		panic("billing: subscription store is required")
	}
	if gw == nil {
		panic("billing: gateway is required")
	}
	if catalog == nil {
		panic("billing: plan catalog is required")
	}

	s := &Service{
		store:   store,
		gateway: gw,
		catalog: catalog,
		log:     logger.Discard(),
		now:     time.Now,
		baseURL: "http://localhost:8080",
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.notifier == nil {
		s.notifier = LogNotifier{Logger: s.log}
	}
	if s.refunder == nil {
		s.refunder = refund.NewCalculator(gw,
			refund.WithClock(s.now),
			refund.WithLogger(s.log),
		)
	}
	return s
}

// Metrics returns the collectors the service reports to, possibly nil.
func (s *Service) Metrics() *Metrics { return s.metrics }

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// notify runs after the state change committed, so a failure is only logged.
func (s *Service) notify(ctx context.Context, t *subscription.Tenant, n Notification) {
	n.TenantID = t.ID
	if n.Email == "" {
		n.Email = billingEmail(t)
	}
	if n.Name == "" {
		n.Name = t.Name
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.ErrorContext(ctx, "failed to send billing notification",
			logger.TenantID(t.ID),
			slog.String("event", string(n.Event)),
			logger.Error(err),
		)
	}
}

func (s *Service) nowUTC() time.Time {
	return s.now().UTC()
}

func billingEmail(t *subscription.Tenant) string {
	if t.Subscription.BillingEmail != "" {
		return t.Subscription.BillingEmail
	}
	return t.Email
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
