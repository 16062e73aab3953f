package billing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/billingkit/pkg/gateway"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

func (s *Service) webhookHandlers() map[string]EventHandler {
	return map[string]EventHandler{
		gateway.EventCheckoutSessionCompleted:    s.timed(s.handleCheckoutCompleted),
		gateway.EventInvoicePaymentSucceeded:     s.timed(s.handleInvoicePaid),
		gateway.EventInvoicePaymentFailed:        s.timed(s.handleInvoiceFailed),
		gateway.EventCustomerSubscriptionUpdated: s.timed(s.handleSubscriptionEnded),
		gateway.EventCustomerSubscriptionDeleted: s.timed(s.handleSubscriptionEnded),
		gateway.EventChargeRefunded:              s.timed(s.handleChargeRefunded),
	}
}

func (s *Service) timed(fn EventHandlerFunc) EventHandler {
	return EventHandlerFunc(func(ctx context.Context, ev *gateway.Event) error {
		ctx, cancel := s.withTimeout(ctx)
		defer cancel()
		return fn(ctx, ev)
	})
}

// handleCheckoutCompleted activates one-time plans. Setup sessions are
// applied by the success redirect, and subscription sessions are confirmed by
// their first invoice.
func (s *Service) handleCheckoutCompleted(ctx context.Context, ev *gateway.Event) error {
	sess, err := gateway.DecodeCheckoutSession(ev)
	if err != nil {
		return err
	}
	if sess.Mode != gateway.CheckoutModePayment {
		s.log.InfoContext(ctx, "checkout completed",
			logger.EventID(ev.ID), logger.CustomerID(sess.CustomerID))
		return nil
	}
	if sess.PaymentIntentID == "" {
		return ErrCheckoutIncomplete
	}

	t, err := s.resolveTenant(ctx, sess.CustomerID, sess.Metadata)
	if err != nil {
		return err
	}
	amount := sess.AmountReceived
	if amount == 0 {
		amount = sess.AmountTotal
	}
	_, err = s.activateOneTime(ctx, t, oneTimePayment{
		Plan:            planFromMetadata(sess.Metadata, subscription.PlanEnterprise),
		PaymentIntentID: sess.PaymentIntentID,
		SessionID:       sess.ID,
		Amount:          amount,
	})
	return err
}

func (s *Service) handleInvoicePaid(ctx context.Context, ev *gateway.Event) error {
	inv, err := gateway.DecodeInvoice(ev)
	if err != nil {
		return err
	}
	if inv.SubscriptionID == "" {
		s.log.DebugContext(ctx, "paid invoice without subscription ignored", logger.EventID(inv.ID))
		return nil
	}

	md := inv.SubscriptionMetadata
	start, end := inv.PeriodStart, inv.PeriodEnd
	if len(md) == 0 || end.IsZero() {
		ps, err := s.gateway.GetSubscription(ctx, inv.SubscriptionID)
		if err != nil {
			return err
		}
		if len(md) == 0 {
			md = ps.Metadata
		}
		if end.IsZero() {
			start, end = ps.CurrentPeriodStart, ps.CurrentPeriodEnd
		}
	}

	t, err := s.tenantForSubscription(ctx, inv.SubscriptionID, inv.CustomerID, md)
	if err != nil {
		return err
	}

	fallback := subscription.PlanPro
	if t.Subscription.Plan.IsRecurring() {
		fallback = t.Subscription.Plan
	}
	_, err = s.applyRecurring(ctx, t, recurringPayment{
		InvoiceID:      inv.ID,
		SubscriptionID: inv.SubscriptionID,
		Plan:           planFromMetadata(md, fallback),
		Amount:         inv.AmountPaid,
		PeriodStart:    start,
		PeriodEnd:      end,
	})
	return err
}

// handleInvoiceFailed moves the tenant to past_due. Repeating the same status
// is harmless, so no marker is kept.
func (s *Service) handleInvoiceFailed(ctx context.Context, ev *gateway.Event) error {
	inv, err := gateway.DecodeInvoice(ev)
	if err != nil {
		return err
	}
	t, err := s.tenantForSubscription(ctx, inv.SubscriptionID, inv.CustomerID, inv.SubscriptionMetadata)
	if err != nil {
		return err
	}

	var moved bool
	updated, err := s.store.Update(ctx, t.ID, func(sub *subscription.Subscription) error {
		moved = false
		if sub.Status == subscription.StatusCanceled {
			return subscription.ErrSkip
		}
		if inv.SubscriptionID != "" && sub.SubscriptionID != "" && sub.SubscriptionID != inv.SubscriptionID {
			return subscription.ErrSkip
		}
		if err := subscription.Transition(ctx, sub, subscription.EventFailPayment); err != nil {
			return err
		}
		moved = true
		return nil
	})
	if err != nil {
		return err
	}
	if !moved {
		s.log.InfoContext(ctx, "payment failure ignored",
			logger.TenantID(t.ID), logger.EventID(inv.ID))
		return nil
	}

	s.log.WarnContext(ctx, "subscription payment failed",
		logger.TenantID(t.ID), logger.SubscriptionID(inv.SubscriptionID))
	s.notify(ctx, updated, Notification{
		Event: NotifyPaymentFailed,
		Plan:  updated.Subscription.Plan.String(),
	})
	return nil
}

// handleSubscriptionEnded refunds and cancels when the provider reports the
// subscription canceled. Other updates are not acted on.
func (s *Service) handleSubscriptionEnded(ctx context.Context, ev *gateway.Event) error {
	ps, err := gateway.DecodeSubscription(ev)
	if err != nil {
		return err
	}
	if ev.Type == gateway.EventCustomerSubscriptionUpdated && ps.Status != gateway.SubscriptionStatusCanceled {
		s.log.DebugContext(ctx, "subscription update ignored",
			logger.SubscriptionID(ps.ID), slog.String("status", ps.Status))
		return nil
	}

	t, err := s.store.GetBySubscriptionID(ctx, ps.ID)
	if errors.Is(err, subscription.ErrTenantNotFound) {
		// Expected after a local cancel or a plan change detached the subscription.
		s.log.InfoContext(ctx, "canceled subscription not held by any tenant", logger.SubscriptionID(ps.ID))
		return nil
	}
	if err != nil {
		return err
	}
	if t.Subscription.Status == subscription.StatusCanceled {
		return nil
	}

	plan := t.Subscription.Plan.String()
	r, err := s.refunder.Calculate(ctx, t)
	if err != nil {
		s.metrics.refund(plan, outcomeFailed, 0)
		return err
	}
	if r.Required() {
		s.metrics.refund(plan, outcomeFailed, 0)
		return ErrRefundNotProduced
	}
	switch {
	case r.AlreadyRefunded:
		s.metrics.refund(plan, outcomeAdopted, 0)
	case r.Amount > 0:
		s.metrics.refund(plan, outcomeCreated, r.Amount)
	default:
		s.metrics.refund(plan, outcomeNone, 0)
	}

	updated, transitioned, err := s.cancelLocally(ctx, t.ID, r)
	if err != nil {
		return err
	}
	if transitioned {
		s.log.InfoContext(ctx, "subscription cancelled by provider",
			logger.TenantID(t.ID), logger.Plan(plan), logger.Amount(r.Amount))
		s.notify(ctx, updated, Notification{
			Event:    NotifySubscriptionCancelled,
			Plan:     plan,
			Amount:   r.Amount,
			RefundID: r.RefundID,
		})
	}
	return nil
}

// handleChargeRefunded records the refund only. The cancellation notice is
// sent by whichever path cancels, so this handler stays silent regardless of
// the order events arrive in.
func (s *Service) handleChargeRefunded(ctx context.Context, ev *gateway.Event) error {
	ch, err := gateway.DecodeCharge(ev)
	if err != nil {
		return err
	}
	if len(ch.Refunds) == 0 || ch.Refunds[0].ID == "" {
		s.log.InfoContext(ctx, "refunded charge without refund details", logger.EventID(ev.ID))
		return nil
	}
	customerID := ch.CustomerID
	if customerID == "" {
		customerID = ch.Metadata[gateway.MetadataCustomer]
	}
	t, err := s.resolveTenant(ctx, customerID, ch.Metadata)
	if err != nil {
		return err
	}

	r := ch.Refunds[0]
	refundedAt := r.Created.UTC()
	if r.Created.IsZero() {
		refundedAt = s.nowUTC()
	}
	key := subscription.EventKey{Marker: subscription.MarkerRefund, ID: r.ID}
	_, applied, err := s.store.ApplyIfNewEvent(ctx, t.ID, key, func(sub *subscription.Subscription) error {
		sub.LastRefund = &subscription.Refund{ID: r.ID, Amount: r.Amount, RefundedAt: refundedAt}
		return nil
	})
	if err != nil {
		return err
	}
	if applied {
		s.log.InfoContext(ctx, "refund recorded",
			logger.TenantID(t.ID), logger.RefundID(r.ID), logger.Amount(r.Amount))
	}
	return nil
}

// tenantForSubscription resolves by subscription ID, then customer ID, then
// the tenantId metadata.
func (s *Service) tenantForSubscription(ctx context.Context, subscriptionID, customerID string, md map[string]string) (*subscription.Tenant, error) {
	t, err := s.store.GetBySubscriptionID(ctx, subscriptionID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, subscription.ErrTenantNotFound) {
		return nil, err
	}
	return s.resolveTenant(ctx, customerID, md)
}
