package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
)

// Stripe implements Gateway on top of stripe-go.
type Stripe struct {
	api           *client.API
	webhookSecret string
	tolerance     time.Duration
}

// StripeOption configures a Stripe gateway.
type StripeOption func(*stripeOptions)

type stripeOptions struct {
	backend   stripe.Backend
	tolerance time.Duration
}

// WithBackend replaces the API backend. Tests point it at an httptest server.
func WithBackend(b stripe.Backend) StripeOption {
	return func(o *stripeOptions) {
		if b != nil {
			o.backend = b
		}
	}
}

// WithWebhookTolerance bounds the accepted age of a signed payload.
func WithWebhookTolerance(d time.Duration) StripeOption {
	return func(o *stripeOptions) {
		if d > 0 {
			o.tolerance = d
		}
	}
}

// NewStripe builds a gateway from an API key and webhook signing secret.
// It panics when either is empty.
func NewStripe(secretKey, webhookSecret string, opts ...StripeOption) *Stripe {
	if secretKey == "" {
		panic("gateway: stripe secret key is required")
	}
	if webhookSecret == "" {
		panic("gateway: stripe webhook secret is required")
	}

	o := stripeOptions{tolerance: webhook.DefaultTolerance}
	for _, opt := range opts {
		opt(&o)
	}

	var backends *stripe.Backends
	if o.backend != nil {
		backends = &stripe.Backends{API: o.backend, Connect: o.backend, Uploads: o.backend}
	}

	return &Stripe{
		api:           client.New(secretKey, backends),
		webhookSecret: webhookSecret,
		tolerance:     o.tolerance,
	}
}

// NewStripeFromConfig builds a gateway from Config.
func NewStripeFromConfig(cfg Config, opts ...StripeOption) *Stripe {
	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}
	base := []StripeOption{
		WithBackend(stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)),
		WithWebhookTolerance(cfg.WebhookTolerance),
	}
	return NewStripe(cfg.SecretKey, cfg.WebhookSecret, append(base, opts...)...)
}

func (s *Stripe) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	if id == "" {
		return nil, errors.Join(ErrMissingParam, errors.New("customer id"))
	}
	params := &stripe.CustomerParams{}
	params.Context = ctx
	params.AddExpand("invoice_settings.default_payment_method")

	c, err := s.api.Customers.Get(id, params)
	if err != nil {
		return nil, wrapError("get customer", err)
	}
	return toCustomer(c), nil
}

func (s *Stripe) CreateCustomer(ctx context.Context, p CustomerParams) (*Customer, error) {
	if p.Email == "" {
		return nil, errors.Join(ErrMissingParam, errors.New("customer email"))
	}
	params := &stripe.CustomerParams{Email: stripe.String(p.Email)}
	params.Context = ctx
	if p.Name != "" {
		params.Name = stripe.String(p.Name)
	}
	if p.TenantID != "" {
		params.AddMetadata(MetadataTenantID, p.TenantID)
	}
	params.SetIdempotencyKey(keyOr(p.IdempotencyKey, "customer", p.TenantID, p.Email))

	c, err := s.api.Customers.New(params)
	if err != nil {
		return nil, wrapError("create customer", err)
	}
	return toCustomer(c), nil
}

func (s *Stripe) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	params := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(IdempotencyKey("default-pm", customerID, paymentMethodID))

	if _, err := s.api.Customers.Update(customerID, params); err != nil {
		return wrapError("set default payment method", err)
	}
	return nil
}

func (s *Stripe) GetPaymentMethod(ctx context.Context, id string) (*PaymentMethod, error) {
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx

	pm, err := s.api.PaymentMethods.Get(id, params)
	if err != nil {
		return nil, wrapError("get payment method", err)
	}
	return toPaymentMethod(pm), nil
}

func (s *Stripe) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	params := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	params.SetIdempotencyKey(IdempotencyKey("attach-pm", paymentMethodID, customerID))

	if _, err := s.api.PaymentMethods.Attach(paymentMethodID, params); err != nil {
		return wrapError("attach payment method", err)
	}
	return nil
}

func (s *Stripe) CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (*CheckoutSession, error) {
	if p.CustomerID == "" {
		return nil, errors.Join(ErrMissingParam, errors.New("checkout customer"))
	}
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(p.Mode)),
		Customer:           stripe.String(p.CustomerID),
		SuccessURL:         stripe.String(p.SuccessURL),
		CancelURL:          stripe.String(p.CancelURL),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx

	switch p.Mode {
	case CheckoutModeSetup:
	case CheckoutModePayment, CheckoutModeSubscription:
		if p.PriceID == "" {
			return nil, errors.Join(ErrMissingParam, fmt.Errorf("price for %s checkout", p.Mode))
		}
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.PriceID), Quantity: stripe.Int64(1)},
		}
	default:
		return nil, errors.Join(ErrMissingParam, fmt.Errorf("unknown checkout mode %q", p.Mode))
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	params.SetIdempotencyKey(keyOr(p.IdempotencyKey, "checkout", string(p.Mode), p.CustomerID, p.PriceID))

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, wrapError("create checkout session", err)
	}
	return toCheckoutSession(sess), nil
}

func (s *Stripe) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("setup_intent")
	params.AddExpand("payment_intent")
	params.AddExpand("subscription")

	sess, err := s.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, wrapError("get checkout session", err)
	}
	return toCheckoutSession(sess), nil
}

func (s *Stripe) CreateSubscription(ctx context.Context, p SubscriptionParams) (*Subscription, error) {
	if p.CustomerID == "" || p.PriceID == "" {
		return nil, errors.Join(ErrMissingParam, errors.New("subscription customer and price"))
	}
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(p.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(p.PriceID)},
		},
	}
	params.Context = ctx
	if p.PaymentMethodID != "" {
		params.DefaultPaymentMethod = stripe.String(p.PaymentMethodID)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddExpand("latest_invoice.payment_intent")
	params.SetIdempotencyKey(keyOr(p.IdempotencyKey, "subscription", p.CustomerID, p.PriceID, p.PaymentMethodID))

	sub, err := s.api.Subscriptions.New(params)
	if err != nil {
		return nil, wrapError("create subscription", err)
	}
	return toSubscription(sub), nil
}

func (s *Stripe) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("latest_invoice")

	sub, err := s.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, wrapError("get subscription", err)
	}
	return toSubscription(sub), nil
}

func (s *Stripe) CancelSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	params.SetIdempotencyKey(IdempotencyKey("cancel-subscription", id))

	sub, err := s.api.Subscriptions.Cancel(id, params)
	if err != nil {
		return nil, wrapError("cancel subscription", err)
	}
	return toSubscription(sub), nil
}

func (s *Stripe) LatestCharge(ctx context.Context, customerID string) (*Charge, error) {
	params := &stripe.ChargeListParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.Single = true

	it := s.api.Charges.List(params)
	if it.Next() {
		return toCharge(it.Charge()), nil
	}
	if err := it.Err(); err != nil {
		return nil, wrapError("list charges", err)
	}
	return nil, ErrNotFound
}

func (s *Stripe) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, wrapError("get payment intent", err)
	}
	return toPaymentIntent(pi), nil
}

// ListRefunds returns up to ten refunds of a payment intent, newest first.
func (s *Stripe) ListRefunds(ctx context.Context, paymentIntentID string) ([]Refund, error) {
	params := &stripe.RefundListParams{PaymentIntent: stripe.String(paymentIntentID)}
	params.Context = ctx
	params.Limit = stripe.Int64(10)
	params.Single = true

	var out []Refund
	it := s.api.Refunds.List(params)
	for it.Next() {
		out = append(out, toRefund(it.Refund()))
	}
	if err := it.Err(); err != nil {
		return nil, wrapError("list refunds", err)
	}
	return out, nil
}

func (s *Stripe) CreateRefund(ctx context.Context, p RefundParams) (*Refund, error) {
	params := &stripe.RefundParams{}
	params.Context = ctx

	ref := p.PaymentIntentID
	switch {
	case p.PaymentIntentID != "":
		params.PaymentIntent = stripe.String(p.PaymentIntentID)
	case p.ChargeID != "":
		params.Charge = stripe.String(p.ChargeID)
		ref = p.ChargeID
	default:
		return nil, errors.Join(ErrMissingParam, errors.New("refund target"))
	}
	if p.Amount > 0 {
		params.Amount = stripe.Int64(p.Amount)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	params.SetIdempotencyKey(keyOr(p.IdempotencyKey, "refund", ref, strconv.FormatInt(p.Amount, 10)))

	r, err := s.api.Refunds.New(params)
	if err != nil {
		return nil, wrapError("create refund", err)
	}
	out := toRefund(r)
	return &out, nil
}

func (s *Stripe) VerifyEvent(payload []byte, header string) (*Event, error) {
	if len(payload) == 0 || header == "" {
		return nil, ErrInvalidSignature
	}
	ev, err := webhook.ConstructEventWithOptions(payload, header, s.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                s.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}

	out := &Event{
		ID:      ev.ID,
		Type:    string(ev.Type),
		Created: unix(ev.Created),
	}
	if ev.Data != nil {
		out.Object = ev.Data.Raw
	}
	return out, nil
}

func wrapError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound {
			return errors.Join(ErrNotFound, fmt.Errorf("stripe %s: %w", op, err))
		}
	}
	return errors.Join(ErrProvider, fmt.Errorf("stripe %s: %w", op, err))
}
