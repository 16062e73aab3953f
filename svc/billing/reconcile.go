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

// Report reasons.
const (
	ReasonExpired  = "SUBSCRIPTION_EXPIRED"
	ReasonInactive = "SUBSCRIPTION_INACTIVE"
)

// Provider status placeholders used when there is nothing to compare against.
const (
	ProviderStatusNone     = "none"
	ProviderStatusNotFound = "not_found"
)

const paymentIntentSucceeded = "succeeded"

// Report compares the local subscription record with the provider.
type Report struct {
	TenantID         uuid.UUID           `json:"tenantId"`
	Plan             subscription.Plan   `json:"plan"`
	DBExists         bool                `json:"dbExists"`
	StripeExists     bool                `json:"stripeExists"`
	DBStatus         subscription.Status `json:"dbStatus"`
	StripeStatus     string              `json:"stripeStatus"`
	SubscriptionID   string              `json:"subscriptionId,omitempty"`
	PaymentIntentID  string              `json:"paymentIntentId,omitempty"`
	CurrentPeriodEnd *time.Time          `json:"currentPeriodEnd,omitempty"`
	// Reason is empty when both sides agree the plan is live.
	Reason string `json:"reason,omitempty"`
}

// Active reports whether the plan is live on both sides.
func (r Report) Active() bool { return r.Reason == "" }

// CheckSubscription is the read-only drift check between the local record and
// the provider. A provider "not found" is part of the report, not an error.
func (s *Service) CheckSubscription(ctx context.Context, tenantID uuid.UUID) (*Report, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	t, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sub := t.Subscription

	rep := &Report{
		TenantID:         t.ID,
		Plan:             sub.Plan,
		DBStatus:         sub.Status,
		DBExists:         sub.Status == subscription.StatusActive || sub.Status == subscription.StatusTrialing,
		StripeStatus:     ProviderStatusNone,
		SubscriptionID:   sub.SubscriptionID,
		PaymentIntentID:  sub.PaymentIntentID,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
	}

	switch {
	case sub.SubscriptionID != "":
		ps, err := s.gateway.GetSubscription(ctx, sub.SubscriptionID)
		switch {
		case errors.Is(err, gateway.ErrNotFound):
			rep.StripeStatus = ProviderStatusNotFound
		case err != nil:
			return nil, err
		default:
			rep.StripeStatus = ps.Status
			rep.StripeExists = providerActive(ps.Status)
			if !ps.CurrentPeriodEnd.IsZero() {
				end := ps.CurrentPeriodEnd.UTC()
				rep.CurrentPeriodEnd = &end
			}
		}

	case sub.Plan == subscription.PlanEnterprise && sub.PaymentIntentID != "":
		pi, err := s.gateway.GetPaymentIntent(ctx, sub.PaymentIntentID)
		switch {
		case errors.Is(err, gateway.ErrNotFound):
			rep.StripeStatus = ProviderStatusNotFound
		case err != nil:
			return nil, err
		default:
			rep.StripeStatus = pi.Status
			rep.StripeExists = pi.Status == paymentIntentSucceeded
		}
	}

	switch {
	case rep.CurrentPeriodEnd != nil && rep.CurrentPeriodEnd.Before(s.nowUTC()):
		rep.Reason = ReasonExpired
	case !rep.DBExists || !rep.StripeExists:
		rep.Reason = ReasonInactive
	}

	if rep.Reason != "" {
		s.log.InfoContext(ctx, "subscription check found no live plan",
			logger.TenantID(t.ID), logger.Plan(sub.Plan.String()),
			slog.String("reason", rep.Reason))
	}
	return rep, nil
}
