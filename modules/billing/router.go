package billing

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	billingsvc "github.com/dmitrymomot/billingkit/svc/billing"

	"github.com/dmitrymomot/billingkit/binder"
	"github.com/dmitrymomot/billingkit/handler"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/tenant"
)

// Service is the billing behaviour the routes expose.
type Service interface {
	Subscribe(ctx context.Context, tenantID uuid.UUID, req billingsvc.SubscribeRequest) (*billingsvc.SubscribeResult, error)
	CompleteCheckout(ctx context.Context, sessionID string) (*billingsvc.CheckoutOutcome, error)
	Cancel(ctx context.Context, tenantID uuid.UUID) (*billingsvc.CancelResult, error)
	CheckSubscription(ctx context.Context, tenantID uuid.UUID) (*billingsvc.Report, error)
}

// WebhookProcessor verifies and applies one provider delivery.
type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, signature string) error
}

// RouterOptions configures the billing routes. Service, Webhooks and Tenants
// are required.
type RouterOptions struct {
	Service  Service
	Webhooks WebhookProcessor
	Tenants  tenant.Provider
	Logger   *slog.Logger

	// SuccessRedirect and CancelRedirect, when set, send the browser on after
	// the provider redirects. Without them the routes answer with JSON.
	SuccessRedirect string
	CancelRedirect  string

	// TenantOptions are passed to the tenant middleware.
	TenantOptions []tenant.Option
}

type routes struct {
	svc      Service
	webhooks WebhookProcessor
	log      *slog.Logger
	opts     RouterOptions
}

// Router builds the billing router, to be mounted under /billing.
func Router(opts RouterOptions) chi.Router {
	if opts.Service == nil || opts.Webhooks == nil || opts.Tenants == nil {
		panic("billing: service, webhooks and tenants are required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	rt := &routes{svc: opts.Service, webhooks: opts.Webhooks, log: log.With(logger.Component("billing_http")), opts: opts}
	errs := handler.NewErrorHandler(rt.log)

	r := chi.NewRouter()

	r.Post("/webhook", rt.webhook)
	r.Get("/stripe-success", handler.Wrap(rt.checkoutSuccess,
		handler.WithBinders[handler.Context, successRequest](binder.BindQuery()),
		handler.WithErrorHandler[handler.Context, successRequest](errs),
	))
	r.Get("/stripe-cancel", handler.Wrap(rt.checkoutCanceled,
		handler.WithErrorHandler[handler.Context, struct{}](errs),
	))

	tenantOpts := append([]tenant.Option{
		tenant.WithErrorHandler(rt.tenantError),
		tenant.WithLogger(rt.log),
	}, opts.TenantOptions...)

	r.Group(func(r chi.Router) {
		r.Use(tenant.Middleware(tenant.NewHeaderResolver(tenant.DefaultHeader), opts.Tenants, tenantOpts...))

		r.Post("/subscribe", handler.Wrap(rt.subscribe,
			handler.WithBinders[handler.Context, billingsvc.SubscribeRequest](binder.BindJSON()),
			handler.WithErrorHandler[handler.Context, billingsvc.SubscribeRequest](errs),
		))
		r.Post("/cancel-subscription", handler.Wrap(rt.cancel,
			handler.WithErrorHandler[handler.Context, struct{}](errs),
		))
		r.Get("/check-subscription", handler.Wrap(rt.check,
			handler.WithErrorHandler[handler.Context, struct{}](errs),
		))
	})

	return r
}
