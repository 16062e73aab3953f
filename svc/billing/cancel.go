package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/refund"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// CancelResult is the refund summary returned to the tenant.
type CancelResult struct {
	TenantID        uuid.UUID           `json:"tenantId"`
	Plan            subscription.Plan   `json:"plan"`
	Status          subscription.Status `json:"status"`
	AmountPaid      int64               `json:"amountPaid"`
	RefundAmount    int64               `json:"refundAmount"`
	RefundID        string              `json:"refundId,omitempty"`
	AlreadyRefunded bool                `json:"alreadyRefunded"`
	AlreadyCanceled bool                `json:"alreadyCanceled,omitempty"`

	// CancellationPending is set when a refund exists but the plan is still
	// active, typically after an earlier attempt was blocked by a mismatch.
	CancellationPending bool `json:"cancellationPending,omitempty"`
}

// Cancel refunds and cancels the tenant's paid plan.
//
// The refund always comes first. If it was due but not produced, or its amount
// differs from what was paid (a zero refund included), nothing is cancelled.
// A refund that already exists is reported as success without further
// provider calls.
func (s *Service) Cancel(ctx context.Context, tenantID uuid.UUID) (*CancelResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	t, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sub := t.Subscription
	plan := sub.Plan.String()

	res := &CancelResult{
		TenantID:   t.ID,
		Plan:       sub.Plan,
		Status:     sub.Status,
		AmountPaid: sub.AmountPaid,
	}

	if sub.Status == subscription.StatusCanceled {
		res.AlreadyCanceled = true
		if sub.LastRefund != nil {
			res.AlreadyRefunded = true
			res.RefundAmount = sub.LastRefund.Amount
			res.RefundID = sub.LastRefund.ID
		}
		s.metrics.cancel(resultDuplicate)
		return res, nil
	}
	if !sub.Plan.IsPaid() {
		s.metrics.cancel(resultRejected)
		return nil, ErrNoActiveSubscription
	}

	r, err := s.refunder.Calculate(ctx, t)
	if err != nil {
		s.metrics.refund(plan, outcomeFailed, 0)
		s.metrics.cancel(resultError)
		return nil, err
	}
	res.RefundAmount = r.Amount
	res.RefundID = r.RefundID

	if r.AlreadyRefunded {
		res.AlreadyRefunded = true
		s.metrics.refund(plan, outcomeAdopted, 0)
		s.metrics.cancel(resultDuplicate)
		if sub.LastRefund == nil || sub.LastRefund.ID != r.RefundID {
			s.recordRefund(ctx, t.ID, r)
		}
		res.CancellationPending = true
		s.log.WarnContext(ctx, "refund already issued but plan still active, cancellation needs operator attention",
			logger.TenantID(t.ID), logger.Plan(plan), logger.RefundID(r.RefundID), logger.Amount(r.Amount))
		return res, nil
	}

	if r.Required() {
		s.metrics.refund(plan, outcomeFailed, 0)
		s.metrics.cancel(resultBlocked)
		s.log.ErrorContext(ctx, "refund required but not produced, cancellation blocked",
			logger.TenantID(t.ID), logger.Plan(plan), logger.Amount(r.Amount))
		return nil, ErrRefundNotProduced
	}

	if r.Amount != sub.AmountPaid {
		s.metrics.refund(plan, outcomeMismatch, r.Amount)
		s.metrics.cancel(resultBlocked)
		// Keep the refund on record so a retry adopts it instead of refunding again.
		s.recordRefund(ctx, t.ID, r)
		s.log.ErrorContext(ctx, "refund amount differs from amount paid, cancellation blocked",
			logger.TenantID(t.ID),
			logger.Plan(plan),
			logger.RefundID(r.RefundID),
			logger.Amount(r.Amount),
		)
		return nil, fmt.Errorf("%w: refunded %d of %d", ErrRefundMismatch, r.Amount, sub.AmountPaid)
	}

	if r.Amount > 0 {
		s.metrics.refund(plan, outcomeCreated, r.Amount)
	} else {
		s.metrics.refund(plan, outcomeNone, 0)
	}

	updated, transitioned, err := s.cancelLocally(ctx, t.ID, r)
	if err != nil {
		s.metrics.cancel(resultError)
		s.log.ErrorContext(ctx, "refund issued but cancellation not persisted",
			logger.TenantID(t.ID), logger.RefundID(r.RefundID), logger.Error(err))
		return nil, err
	}

	// Local state no longer references the subscription, so the provider's
	// deletion webhook finds no tenant and cannot refund a second time.
	s.cancelProviderSubscription(ctx, t.ID, sub.SubscriptionID)

	if transitioned {
		s.notify(ctx, updated, Notification{
			Event:    NotifySubscriptionCancelled,
			Plan:     plan,
			Amount:   r.Amount,
			RefundID: r.RefundID,
		})
	}
	s.metrics.cancel(resultOK)
	s.log.InfoContext(ctx, "subscription cancelled",
		logger.TenantID(t.ID), logger.Plan(plan), logger.Amount(r.Amount))

	res.Status = updated.Subscription.Status
	return res, nil
}

// cancelLocally writes the refund record and the canceled status together.
// transitioned is true only for the caller that moved the tenant to canceled,
// which is the one that notifies.
func (s *Service) cancelLocally(ctx context.Context, tenantID uuid.UUID, r refund.Result) (*subscription.Tenant, bool, error) {
	var transitioned bool
	updated, err := s.store.Update(ctx, tenantID, func(sub *subscription.Subscription) error {
		transitioned = false
		changed := false
		if r.RefundID != "" && (sub.LastRefund == nil || sub.LastRefund.ID != r.RefundID) {
			sub.LastRefund = &subscription.Refund{ID: r.RefundID, Amount: r.Amount, RefundedAt: s.nowUTC()}
			changed = true
		}
		if sub.Status != subscription.StatusCanceled {
			if err := subscription.Transition(ctx, sub, subscription.EventCancel); err != nil {
				return err
			}
			now := s.nowUTC()
			sub.CancelledAt = &now
			transitioned = true
			changed = true
		}
		if !changed {
			return subscription.ErrSkip
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return updated, transitioned, nil
}

// recordRefund stores a refund without touching the status.
func (s *Service) recordRefund(ctx context.Context, tenantID uuid.UUID, r refund.Result) {
	if r.RefundID == "" {
		return
	}
	key := subscription.EventKey{Marker: subscription.MarkerRefund, ID: r.RefundID}
	_, _, err := s.store.ApplyIfNewEvent(ctx, tenantID, key, func(sub *subscription.Subscription) error {
		sub.LastRefund = &subscription.Refund{ID: r.RefundID, Amount: r.Amount, RefundedAt: s.nowUTC()}
		return nil
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to record refund",
			logger.TenantID(tenantID), logger.RefundID(r.RefundID), logger.Error(err))
	}
}
