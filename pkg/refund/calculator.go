package refund

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/gateway"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// Provider is the part of the gateway the calculator talks to.
type Provider interface {
	ListRefunds(ctx context.Context, paymentIntentID string) ([]gateway.Refund, error)
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (*gateway.PaymentIntent, error)
	LatestCharge(ctx context.Context, customerID string) (*gateway.Charge, error)
	CreateRefund(ctx context.Context, params gateway.RefundParams) (*gateway.Refund, error)
}

// Result is the refund outcome for one cancellation.
type Result struct {
	Amount   int64
	RefundID string
	// AlreadyRefunded is set when the refund was found rather than created.
	AlreadyRefunded bool
	// Charged is what the provider reports as paid for the refunded payment.
	Charged int64
	// PaymentRef is the payment intent or charge the refund targets.
	PaymentRef string
}

// Required reports whether a refund was due but none was produced.
func (r Result) Required() bool {
	return r.Amount > 0 && r.RefundID == ""
}

// Option configures a Calculator.
type Option func(*Calculator)

func WithClock(now func() time.Time) Option {
	return func(c *Calculator) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Calculator) {
		if l != nil {
			c.log = l
		}
	}
}

// Calculator computes and issues refunds. It never writes subscription state.
type Calculator struct {
	provider Provider
	now      func() time.Time
	log      *slog.Logger
}

// NewCalculator panics on a nil provider.
func NewCalculator(p Provider, opts ...Option) *Calculator {
	if p == nil {
		panic("refund: provider is required")
	}
	c := &Calculator{
		provider: p,
		now:      time.Now,
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calculate decides the refund for t's current subscription and creates it
// at the provider when one is due.
func (c *Calculator) Calculate(ctx context.Context, t *subscription.Tenant) (Result, error) {
	sub := t.Subscription
	if sub.LastRefund != nil && sub.LastRefund.ID != "" {
		return Result{
			Amount:          sub.LastRefund.Amount,
			RefundID:        sub.LastRefund.ID,
			AlreadyRefunded: true,
			Charged:         sub.AmountPaid,
		}, nil
	}

	switch {
	case sub.Plan == subscription.PlanEnterprise && sub.PaymentIntentID != "":
		return c.enterprise(ctx, t)
	case sub.Plan == subscription.PlanPro && sub.SubscriptionID != "":
		return c.pro(ctx, t)
	}
	return Result{}, nil
}

func (c *Calculator) enterprise(ctx context.Context, t *subscription.Tenant) (Result, error) {
	piID := t.Subscription.PaymentIntentID

	// A previous attempt may have created the refund and crashed before
	// recording it.
	existing, err := c.provider.ListRefunds(ctx, piID)
	if err != nil {
		return Result{}, fail("list refunds", err)
	}
	if len(existing) > 0 {
		r := existing[0]
		c.log.InfoContext(ctx, "adopting existing provider refund",
			logger.TenantID(t.ID), logger.RefundID(r.ID), logger.Amount(r.Amount))
		return Result{
			Amount:          r.Amount,
			RefundID:        r.ID,
			AlreadyRefunded: true,
			Charged:         t.Subscription.AmountPaid,
			PaymentRef:      piID,
		}, nil
	}

	pi, err := c.provider.GetPaymentIntent(ctx, piID)
	if err != nil {
		return Result{}, fail("get payment intent", err)
	}

	days := DaysUsed(c.periodStart(t), c.now())
	res := Result{
		Amount:     Prorate(pi.Amount, days),
		Charged:    pi.Amount,
		PaymentRef: piID,
	}
	if res.Amount == 0 {
		return res, nil
	}

	refund, err := c.provider.CreateRefund(ctx, gateway.RefundParams{
		PaymentIntentID: piID,
		Amount:          res.Amount,
		Metadata:        map[string]string{gateway.MetadataCustomer: t.Subscription.CustomerID},
		IdempotencyKey:  idempotencyKey(t, piID),
	})
	if err != nil {
		return Result{}, fail("create refund", err)
	}
	res.RefundID = refund.ID
	return res, nil
}

// pro refunds the customer's most recent charge, which may belong to an
// earlier period if the tenant was re-billed.
func (c *Calculator) pro(ctx context.Context, t *subscription.Tenant) (Result, error) {
	charge, err := c.provider.LatestCharge(ctx, t.Subscription.CustomerID)
	if errors.Is(err, gateway.ErrNotFound) {
		c.log.InfoContext(ctx, "no charge to refund", logger.TenantID(t.ID), logger.CustomerID(t.Subscription.CustomerID))
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fail("latest charge", err)
	}

	days := DaysUsed(c.periodStart(t), c.now())
	res := Result{
		Amount:     Recurring(charge.Amount, days),
		Charged:    charge.Amount,
		PaymentRef: charge.ID,
	}
	if res.Amount == 0 {
		return res, nil
	}

	refund, err := c.provider.CreateRefund(ctx, gateway.RefundParams{
		ChargeID:       charge.ID,
		Amount:         res.Amount,
		Metadata:       map[string]string{gateway.MetadataCustomer: t.Subscription.CustomerID},
		IdempotencyKey: idempotencyKey(t, charge.ID),
	})
	if err != nil {
		return Result{}, fail("create refund", err)
	}
	res.RefundID = refund.ID
	return res, nil
}

// periodStart falls back to now, which yields a full refund.
func (c *Calculator) periodStart(t *subscription.Tenant) time.Time {
	if t.Subscription.CurrentPeriodStart != nil {
		return *t.Subscription.CurrentPeriodStart
	}
	return c.now()
}

func idempotencyKey(t *subscription.Tenant, paymentRef string) string {
	return fmt.Sprintf("refund:%s:%s", t.ID, paymentRef)
}

func fail(op string, err error) error {
	return errors.Join(ErrRefundFailed, fmt.Errorf("%s: %w", op, err))
}
