package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/gateway"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// CheckoutOutcome reports what the success redirect applied.
type CheckoutOutcome struct {
	Mode            gateway.CheckoutMode `json:"mode"`
	TenantID        uuid.UUID            `json:"tenantId"`
	Plan            subscription.Plan    `json:"plan,omitempty"`
	Status          subscription.Status  `json:"status,omitempty"`
	PaymentMethodID string               `json:"paymentMethodId,omitempty"`
	PaymentIntentID string               `json:"paymentIntentId,omitempty"`
	SubscriptionID  string               `json:"subscriptionId,omitempty"`
	AmountPaid      int64                `json:"amountPaid,omitempty"`
}

// CompleteCheckout applies the outcome of a checkout session after the
// provider redirects back. It shares idempotency markers with the webhook
// handlers, so whichever arrives second is a no-op.
func (s *Service) CompleteCheckout(ctx context.Context, sessionID string) (*CheckoutOutcome, error) {
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	sess, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	t, err := s.resolveTenant(ctx, sess.CustomerID, sess.Metadata)
	if err != nil {
		return nil, err
	}

	out := &CheckoutOutcome{Mode: sess.Mode, TenantID: t.ID}

	switch sess.Mode {
	case gateway.CheckoutModeSetup:
		if sess.SetupPaymentMethodID == "" {
			return nil, ErrCheckoutIncomplete
		}
		pm, err := s.gateway.GetPaymentMethod(ctx, sess.SetupPaymentMethodID)
		if err != nil {
			return nil, err
		}
		if err := s.attachDefault(ctx, t, sess.CustomerID, pm); err != nil {
			return nil, err
		}
		out.PaymentMethodID = pm.ID
		out.Plan = t.Subscription.Plan
		out.Status = t.Subscription.Status

	case gateway.CheckoutModePayment:
		if sess.PaymentIntentID == "" {
			return nil, ErrCheckoutIncomplete
		}
		amount := sess.AmountReceived
		if amount == 0 {
			amount = sess.AmountTotal
		}
		plan := planFromMetadata(sess.Metadata, subscription.PlanEnterprise)
		updated, err := s.activateOneTime(ctx, t, oneTimePayment{
			Plan:            plan,
			PaymentIntentID: sess.PaymentIntentID,
			SessionID:       sess.ID,
			Amount:          amount,
		})
		if err != nil {
			return nil, err
		}
		out.Plan = updated.Subscription.Plan
		out.Status = updated.Subscription.Status
		out.PaymentIntentID = sess.PaymentIntentID
		out.AmountPaid = updated.Subscription.AmountPaid

	case gateway.CheckoutModeSubscription:
		if sess.SubscriptionID == "" {
			return nil, ErrCheckoutIncomplete
		}
		ps, err := s.gateway.GetSubscription(ctx, sess.SubscriptionID)
		if err != nil {
			return nil, err
		}
		out.SubscriptionID = ps.ID
		out.Plan = t.Subscription.Plan
		out.Status = t.Subscription.Status
		if !providerActive(ps.Status) || ps.LatestInvoiceID == "" {
			break
		}
		updated, err := s.applyRecurring(ctx, t, recurringPayment{
			InvoiceID:      ps.LatestInvoiceID,
			SubscriptionID: ps.ID,
			Plan:           planFromMetadata(ps.Metadata, subscription.PlanPro),
			Amount:         ps.LatestAmountPaid,
			PeriodStart:    ps.CurrentPeriodStart,
			PeriodEnd:      ps.CurrentPeriodEnd,
		})
		if err != nil {
			return nil, err
		}
		out.Plan = updated.Subscription.Plan
		out.Status = updated.Subscription.Status
		out.AmountPaid = updated.Subscription.AmountPaid

	default:
		return nil, ErrCheckoutIncomplete
	}

	return out, nil
}

type oneTimePayment struct {
	Plan            subscription.Plan
	PaymentIntentID string
	SessionID       string
	Amount          int64
}

// activateOneTime records a one-time plan payment exactly once per payment
// intent and notifies the tenant when it was new.
func (s *Service) activateOneTime(ctx context.Context, t *subscription.Tenant, p oneTimePayment) (*subscription.Tenant, error) {
	key := subscription.EventKey{Marker: subscription.MarkerPaymentIntent, ID: p.PaymentIntentID}
	updated, applied, err := s.store.ApplyIfNewEvent(ctx, t.ID, key, func(sub *subscription.Subscription) error {
		if err := subscription.Transition(ctx, sub, subscription.EventActivate); err != nil {
			return err
		}
		if sub.PaymentIntentID != p.PaymentIntentID {
			startEpisode(sub)
		}
		start := s.nowUTC()
		end := start.Add(enterprisePeriod)
		sub.Plan = p.Plan
		sub.PaymentIntentID = p.PaymentIntentID
		sub.SubscriptionID = ""
		sub.AmountPaid = p.Amount
		sub.CurrentPeriodStart = &start
		sub.CurrentPeriodEnd = &end
		if p.SessionID != "" {
			sub.CheckoutSessionID = p.SessionID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		s.log.DebugContext(ctx, "payment already applied",
			logger.TenantID(t.ID), slog.String("payment_intent_id", p.PaymentIntentID))
		return updated, nil
	}

	s.metrics.checkout(p.Plan.String(), StepActivated)
	s.log.InfoContext(ctx, "one-time plan activated",
		logger.TenantID(t.ID), logger.Plan(p.Plan.String()), logger.Amount(p.Amount))
	s.notify(ctx, updated, Notification{
		Event:  NotifySubscriptionInvoice,
		Plan:   p.Plan.String(),
		Amount: p.Amount,
	})
	return updated, nil
}

type recurringPayment struct {
	InvoiceID      string
	SubscriptionID string
	Plan           subscription.Plan
	Amount         int64
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

// applyRecurring records a paid invoice exactly once per invoice ID.
//
// An invoice of a subscription the tenant no longer points at is ignored.
// While a new subscription is being created the tenant is incomplete with no
// subscription ID; the first invoice may land in that window and is accepted.
func (s *Service) applyRecurring(ctx context.Context, t *subscription.Tenant, p recurringPayment) (*subscription.Tenant, error) {
	stale := false
	mutate := func(sub *subscription.Subscription) error {
		stale = false
		switch {
		case sub.SubscriptionID == p.SubscriptionID:
		case sub.SubscriptionID == "" && sub.Status == subscription.StatusIncomplete:
			startEpisode(sub)
		default:
			stale = true
			return subscription.ErrSkip
		}
		if err := subscription.Transition(ctx, sub, subscription.EventActivate); err != nil {
			return err
		}
		sub.SubscriptionID = p.SubscriptionID
		sub.Plan = p.Plan
		sub.AmountPaid = p.Amount
		if !p.PeriodStart.IsZero() {
			start := p.PeriodStart.UTC()
			sub.CurrentPeriodStart = &start
		}
		if !p.PeriodEnd.IsZero() {
			end := p.PeriodEnd.UTC()
			sub.CurrentPeriodEnd = &end
		}
		return nil
	}

	key := subscription.EventKey{Marker: subscription.MarkerInvoice, ID: p.InvoiceID}
	updated, applied, err := s.store.ApplyIfNewEvent(ctx, t.ID, key, mutate)
	if err != nil {
		return nil, err
	}
	if stale {
		s.log.WarnContext(ctx, "invoice for a subscription the tenant no longer holds",
			logger.TenantID(t.ID), logger.SubscriptionID(p.SubscriptionID), logger.EventID(p.InvoiceID))
		return updated, nil
	}
	if !applied {
		return updated, nil
	}

	s.metrics.checkout(p.Plan.String(), StepActivated)
	s.notify(ctx, updated, Notification{
		Event:  NotifySubscriptionInvoice,
		Plan:   p.Plan.String(),
		Amount: p.Amount,
	})
	return updated, nil
}

// resolveTenant finds the tenant for a provider object by customer ID, then by
// the tenantId metadata written at checkout.
func (s *Service) resolveTenant(ctx context.Context, customerID string, metadata map[string]string) (*subscription.Tenant, error) {
	t, err := s.store.GetByCustomerID(ctx, customerID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, subscription.ErrTenantNotFound) {
		return nil, err
	}
	if id, perr := uuid.Parse(metadata[gateway.MetadataTenantID]); perr == nil {
		t, err = s.store.Get(ctx, id)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, subscription.ErrTenantNotFound) {
			return nil, err
		}
	}
	return nil, errors.Join(ErrUnresolvedTenant, subscription.ErrTenantNotFound)
}

func planFromMetadata(md map[string]string, fallback subscription.Plan) subscription.Plan {
	if p, err := subscription.ParsePlan(md[gateway.MetadataPlan]); err == nil && p.IsPaid() {
		return p
	}
	return fallback
}

func providerActive(status string) bool {
	return status == gateway.SubscriptionStatusActive || status == gateway.SubscriptionStatusTrialing
}
