package subscription_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

func TestTransition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("cancel clears provider subscription", func(t *testing.T) {
		t.Parallel()
		sub := subscription.Subscription{Plan: subscription.PlanPro, Status: subscription.StatusActive, SubscriptionID: "sub_1"}
		require.NoError(t, subscription.Transition(ctx, &sub, subscription.EventCancel))
		assert.Equal(t, subscription.StatusCanceled, sub.Status)
		assert.Empty(t, sub.SubscriptionID)
		assert.NoError(t, sub.Validate())
	})

	t.Run("cancel twice is rejected", func(t *testing.T) {
		t.Parallel()
		sub := subscription.Subscription{Plan: subscription.PlanPro, Status: subscription.StatusCanceled}
		err := subscription.Transition(ctx, &sub, subscription.EventCancel)
		assert.ErrorIs(t, err, subscription.ErrInvalidTransition)
	})

	t.Run("begin checkout blocked on active paid plan", func(t *testing.T) {
		t.Parallel()
		sub := subscription.Subscription{Plan: subscription.PlanPro, Status: subscription.StatusActive}
		assert.False(t, subscription.CanTransition(ctx, &sub, subscription.EventBeginCheckout))
		assert.ErrorIs(t, subscription.Transition(ctx, &sub, subscription.EventBeginCheckout), subscription.ErrInvalidTransition)
	})

	t.Run("begin checkout from free", func(t *testing.T) {
		t.Parallel()
		sub := subscription.Subscription{Plan: subscription.PlanFree, Status: subscription.StatusActive}
		require.NoError(t, subscription.Transition(ctx, &sub, subscription.EventBeginCheckout))
		assert.Equal(t, subscription.StatusIncomplete, sub.Status)
	})

	t.Run("payment failure does not revive canceled", func(t *testing.T) {
		t.Parallel()
		sub := subscription.Subscription{Plan: subscription.PlanPro, Status: subscription.StatusCanceled}
		assert.ErrorIs(t, subscription.Transition(ctx, &sub, subscription.EventFailPayment), subscription.ErrInvalidTransition)
		assert.Equal(t, subscription.StatusCanceled, sub.Status)
	})

	t.Run("activate from any status", func(t *testing.T) {
		t.Parallel()
		for _, st := range []subscription.Status{
			subscription.StatusIncomplete, subscription.StatusPastDue, subscription.StatusCanceled,
			subscription.StatusTrialing, subscription.StatusActive,
		} {
			sub := subscription.Subscription{Plan: subscription.PlanPro, Status: st}
			require.NoError(t, subscription.Transition(ctx, &sub, subscription.EventActivate))
			assert.Equal(t, subscription.StatusActive, sub.Status)
		}
	})
}

func TestParsePlan(t *testing.T) {
	t.Parallel()

	p, err := subscription.ParsePlan("Enterprise")
	require.NoError(t, err)
	assert.Equal(t, subscription.PlanEnterprise, p)
	assert.True(t, p.IsPaid())
	assert.False(t, p.IsRecurring())

	_, err = subscription.ParsePlan("gold")
	assert.ErrorIs(t, err, subscription.ErrInvalidPlan)
}

func TestSubscription_Validate(t *testing.T) {
	t.Parallel()

	base := subscription.Subscription{Plan: subscription.PlanEnterprise, Status: subscription.StatusActive, AmountPaid: 10000}
	assert.NoError(t, base.Validate())

	neg := base
	neg.AmountPaid = -1
	assert.ErrorIs(t, neg.Validate(), subscription.ErrNegativeAmount)

	over := base.Clone()
	over.LastRefund = &subscription.Refund{ID: "re_1", Amount: 10001}
	assert.ErrorIs(t, over.Validate(), subscription.ErrRefundExceedsPaid)

	bad := base
	bad.Status = "paused"
	assert.ErrorIs(t, bad.Validate(), subscription.ErrInvalidStatus)
}
